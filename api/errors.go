package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/asaidimu/go-storefront/core/features"
	"github.com/asaidimu/go-storefront/core/persistence"
	"go.uber.org/zap"
)

// AppError is an error with an HTTP status that is safe to show a client.
type AppError struct {
	StatusCode  int    `json:"-"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Operational bool   `json:"-"`
	Err         error  `json:"-"`
}

// NewAppError creates an operational error. Status is "fail" for 4xx codes
// and "error" for everything else.
func NewAppError(message string, statusCode int) *AppError {
	status := "error"
	if statusCode >= 400 && statusCode < 500 {
		status = "fail"
	}
	return &AppError{
		StatusCode:  statusCode,
		Status:      status,
		Message:     message,
		Operational: true,
	}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HandlerFunc is an http handler that reports failures by returning them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Catch adapts fn to http.HandlerFunc and writes any returned error as JSON.
func Catch(logger *zap.Logger, fn HandlerFunc) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeError(logger, w, r, err)
		}
	}
}

// toAppError maps err onto the error a client gets to see.
func toAppError(err error) *AppError {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, features.ErrMalformedFilter), errors.Is(err, persistence.ErrUnknownField):
		e := NewAppError(err.Error(), http.StatusBadRequest)
		e.Err = err
		return e
	case errors.Is(err, persistence.ErrCollectionNotFound):
		e := NewAppError(err.Error(), http.StatusNotFound)
		e.Err = err
		return e
	default:
		e := NewAppError("something went wrong", http.StatusInternalServerError)
		e.Operational = false
		e.Err = err
		return e
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if !appErr.Operational {
		logger.Error("Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
	}
	writeJSON(w, appErr.StatusCode, appErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
