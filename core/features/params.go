package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/asaidimu/go-storefront/core/query"
)

// Reserved control parameters. They are consumed by the sort, projection and
// pagination stages and are never treated as filters.
const (
	ParamFields = "fields"
	ParamLimit  = "limit"
	ParamPage   = "page"
	ParamSort   = "sort"
)

// ReservedKeys lists the control parameters in wire order.
var ReservedKeys = []string{ParamFields, ParamLimit, ParamPage, ParamSort}

// ErrMalformedFilter reports a filter parameter that cannot be decoded into a
// predicate. It indicates a bad request, not an absent parameter.
var ErrMalformedFilter = errors.New("malformed filter parameter")

// ErrInvalidField reports a field name in a filter, `sort` or `fields`
// parameter that cannot be used as a document path. It wraps
// ErrMalformedFilter, so callers treat both as a bad request.
var ErrInvalidField = fmt.Errorf("%w: invalid field path", ErrMalformedFilter)

// ValidFieldPath reports whether path is a dotted document path whose
// segments are non-empty, hold no NUL and do not start with '$'. Segments
// starting with '$' would be read as operators by document stores.
func ValidFieldPath(path string) bool {
	if path == "" || strings.ContainsRune(path, 0) {
		return false
	}
	for _, segment := range strings.Split(path, ".") {
		if segment == "" || segment[0] == '$' {
			return false
		}
	}
	return true
}

func checkField(path string) error {
	if !ValidFieldPath(path) {
		return fmt.Errorf("%w: %q", ErrInvalidField, path)
	}
	return nil
}

// comparisonTokens maps the wire tokens accepted under a filter field to
// their typed operators. Matching is exact and case-sensitive.
var comparisonTokens = map[string]query.ComparisonOperator{
	"lt":  query.ComparisonOperatorLt,
	"lte": query.ComparisonOperatorLte,
	"gt":  query.ComparisonOperatorGt,
	"gte": query.ComparisonOperatorGte,
}

// bracketKey matches keys of the form field[a][b]...
var bracketKey = regexp.MustCompile(`^([^\[\]]+)((?:\[[^\[\]]+\])+)$`)

// PageSpec is a 1-based page number and a page size.
type PageSpec struct {
	Page  int
	Limit int
}

// Skip returns the number of records before the page.
func (s PageSpec) Skip() int {
	if s.Page <= 1 || s.Limit <= 0 {
		return 0
	}
	if s.Page-1 > math.MaxInt/s.Limit {
		return math.MaxInt
	}
	return (s.Page - 1) * s.Limit
}

// Take returns the page size.
func (s PageSpec) Take() int {
	return s.Limit
}

// Params is the typed form of a request's query parameters, parsed once at
// the boundary.
type Params struct {
	Filter     *query.QueryFilter
	Sort       []query.SortConfiguration
	Projection *query.ProjectionConfiguration
	Page       PageSpec
}

// ParseParams parses raw query parameters. It fails on a malformed filter
// value or an invalid field name; page and limit fall back to their
// defaults.
func ParseParams(raw map[string]string, opts ...Option) (*Params, error) {
	o := buildOptions(opts)
	filter, err := parseFilter(raw)
	if err != nil {
		return nil, err
	}
	keys, err := parseSort(raw[ParamSort], o.DefaultSort)
	if err != nil {
		return nil, err
	}
	projection, err := parseProjection(raw[ParamFields], o.VersionField)
	if err != nil {
		return nil, err
	}
	return &Params{
		Filter:     filter,
		Sort:       keys,
		Projection: projection,
		Page:       parsePage(raw[ParamPage], raw[ParamLimit], o),
	}, nil
}

// ApplyTo composes the parameters onto q in the default stage order.
func (p *Params) ApplyTo(q Queryable) {
	q.ApplyFilter(p.Filter)
	q.ApplySort(p.Sort)
	q.ApplyProjection(p.Projection)
	q.ApplyPagination(p.Page.Skip(), p.Page.Take())
}

// FlattenValues converts url.Values to the flat map the pipeline consumes.
// The first value of a repeated key wins, so category=a&category=b filters
// on "a" only. Like the reserved names, this is a limit of the flat-map
// wire format.
func FlattenValues(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for key, vs := range values {
		if len(vs) > 0 {
			out[key] = vs[0]
		}
	}
	return out
}

// IsReserved reports whether key, or the base name of a bracketed key, is a
// control parameter.
func IsReserved(key string) bool {
	base := key
	if i := strings.IndexByte(key, '['); i > 0 {
		base = key[:i]
	}
	switch base {
	case ParamFields, ParamLimit, ParamPage, ParamSort:
		return true
	}
	return false
}

func parseFilter(raw map[string]string) (*query.QueryFilter, error) {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		if !IsReserved(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var conditions []query.FilterCondition
	for _, key := range keys {
		value := raw[key]

		if m := bracketKey.FindStringSubmatch(key); m != nil {
			segments := strings.Split(strings.Trim(m[2], "[]"), "][")
			conditions = append(conditions, bracketCondition(m[1], segments, value))
			continue
		}

		if strings.HasPrefix(strings.TrimSpace(value), "{") {
			obj, err := decodeObject(value)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrMalformedFilter, key, err)
			}
			conditions = append(conditions, objectConditions(key, obj)...)
			continue
		}

		conditions = append(conditions, query.FilterCondition{
			Field:    key,
			Operator: query.ComparisonOperatorEq,
			Value:    value,
		})
	}

	for _, cond := range conditions {
		if err := checkField(cond.Field); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(conditions, func(i, j int) bool {
		if conditions[i].Field != conditions[j].Field {
			return conditions[i].Field < conditions[j].Field
		}
		return conditions[i].Operator < conditions[j].Operator
	})

	switch len(conditions) {
	case 0:
		return nil, nil
	case 1:
		f := query.QueryFilter{Condition: &conditions[0]}
		return &f, nil
	}
	filters := make([]query.QueryFilter, len(conditions))
	for i := range conditions {
		filters[i] = query.QueryFilter{Condition: &conditions[i]}
	}
	f := query.CreateFilterGroup(query.LogicalOperatorAnd, filters...)
	return &f, nil
}

// bracketCondition turns price[lte]=50 into price <= 50 and
// address[city]=Nairobi into address.city = "Nairobi".
func bracketCondition(field string, segments []string, value string) query.FilterCondition {
	last := segments[len(segments)-1]
	if op, ok := comparisonTokens[last]; ok {
		path := append([]string{field}, segments[:len(segments)-1]...)
		return query.FilterCondition{
			Field:    strings.Join(path, "."),
			Operator: op,
			Value:    coerceOperand(value),
		}
	}
	return query.FilterCondition{
		Field:    strings.Join(append([]string{field}, segments...), "."),
		Operator: query.ComparisonOperatorEq,
		Value:    value,
	}
}

func objectConditions(prefix string, obj map[string]any) []query.FilterCondition {
	if len(obj) == 0 {
		return []query.FilterCondition{{Field: prefix, Operator: query.ComparisonOperatorEq, Value: map[string]any{}}}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conditions []query.FilterCondition
	for _, k := range keys {
		v := obj[k]
		if op, ok := comparisonTokens[k]; ok {
			if s, isString := v.(string); isString {
				v = coerceOperand(s)
			}
			conditions = append(conditions, query.FilterCondition{Field: prefix, Operator: op, Value: v})
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			conditions = append(conditions, objectConditions(prefix+"."+k, nested)...)
			continue
		}
		conditions = append(conditions, query.FilterCondition{
			Field:    prefix + "." + k,
			Operator: query.ComparisonOperatorEq,
			Value:    v,
		})
	}
	return conditions
}

func decodeObject(value string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(value)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	return normalizeJSON(obj).(map[string]any), nil
}

func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeJSON(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
		return val
	}
	return v
}

// coerceOperand turns numeric strings into int64 or float64. Anything else,
// dates included, stays a string for the backend to cast.
func coerceOperand(s string) any {
	trimmed := strings.TrimSpace(s)
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

func parseSort(spec, fallback string) ([]query.SortConfiguration, error) {
	keys := parseSortSpec(spec)
	if len(keys) == 0 {
		keys = parseSortSpec(fallback)
	}
	for _, key := range keys {
		if err := checkField(key.Field); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func parseSortSpec(spec string) []query.SortConfiguration {
	var keys []query.SortConfiguration
	for _, item := range splitList(spec) {
		direction := query.SortDirectionAsc
		switch item[0] {
		case '-':
			direction = query.SortDirectionDesc
			item = item[1:]
		case '+':
			item = item[1:]
		}
		if item == "" {
			continue
		}
		keys = append(keys, query.SortConfiguration{Field: item, Direction: direction})
	}
	return keys
}

func parseProjection(spec, versionField string) (*query.ProjectionConfiguration, error) {
	var include, exclude []string
	for _, item := range splitList(spec) {
		name, excluded := strings.CutPrefix(item, "-")
		if name == "" {
			continue
		}
		if err := checkField(name); err != nil {
			return nil, err
		}
		if excluded {
			exclude = append(exclude, name)
		} else {
			include = append(include, name)
		}
	}

	switch {
	case len(include) > 0:
		return (&query.ProjectionConfiguration{}).AddIncludeFields(include...), nil
	case len(exclude) > 0:
		return (&query.ProjectionConfiguration{}).AddExcludeFields(exclude...), nil
	case versionField != "":
		return (&query.ProjectionConfiguration{}).AddExcludeFields(versionField), nil
	}
	return nil, nil
}

func parsePage(page, limit string, o Options) PageSpec {
	spec := PageSpec{
		Page:  positiveInt(page, DefaultPage),
		Limit: positiveInt(limit, o.DefaultLimit),
	}
	if o.MaxLimit > 0 && spec.Limit > o.MaxLimit {
		spec.Limit = o.MaxLimit
	}
	return spec
}

func positiveInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
