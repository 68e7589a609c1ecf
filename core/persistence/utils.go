package persistence

import (
	"maps"
	"time"

	"github.com/asaidimu/go-storefront/core/schema"
	"github.com/google/uuid"
)

func createEvent(
	eventType PersistenceEventType,
	operation string,
	collectionName string,
	input any,
	output any,
	query any,
	err *string,
	startTime time.Time,
) PersistenceEvent {
	var duration *int64
	if !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		duration = &d
	}

	return PersistenceEvent{
		Type:       eventType,
		Timestamp:  time.Now().UnixMilli(),
		Operation:  operation,
		Collection: collectionName,
		Input:      input,
		Output:     output,
		Error:      err,
		Query:      query,
		Duration:   duration,
	}
}

// Field names stamped on insert when a schema defines them.
const (
	CreatedAtField = "createdAt"
	VersionField   = "__v"
)

// PrepareDocument returns a copy of record ready to be stored in sc. A
// missing identifier gets a UUID; createdAt and __v are filled in when the
// schema defines them and the record leaves them out.
func PrepareDocument(sc *schema.SchemaDefinition, record schema.Document, now time.Time) schema.Document {
	doc := maps.Clone(record)
	if doc == nil {
		doc = schema.Document{}
	}
	identifier := sc.IdentifierField()
	if _, ok := doc[identifier]; !ok {
		doc[identifier] = uuid.New().String()
	}
	if _, defined := sc.Fields[CreatedAtField]; defined {
		if _, ok := doc[CreatedAtField]; !ok {
			doc[CreatedAtField] = now.UTC().Format(time.RFC3339Nano)
		}
	}
	if _, defined := sc.Fields[VersionField]; defined {
		if _, ok := doc[VersionField]; !ok {
			doc[VersionField] = int64(0)
		}
	}
	return doc
}
