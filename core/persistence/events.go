package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// emitEvent is a helper method to emit events
func (c *Collection) emitEvent(event PersistenceEvent) {
	if c.bus != nil {
		c.bus.Emit(string(event.Type), event)
	}
}

// withEventEmission wraps an operation with start, success, and failure events
func (c *Collection) withEventEmission(
	operation string,
	startEventType PersistenceEventType,
	successEventType PersistenceEventType,
	failedEventType PersistenceEventType,
	input any,
	queryParam any,
	fn func() (any, error),
) (any, error) {
	startTime := time.Now()

	c.emitEvent(createEvent(startEventType, operation, c.schema.Name, input, nil, queryParam, nil, startTime))

	result, err := fn()
	if err != nil {
		errStr := err.Error()
		c.emitEvent(createEvent(failedEventType, operation, c.schema.Name, input, nil, queryParam, &errStr, startTime))
		return nil, err
	}

	c.emitEvent(createEvent(successEventType, operation, c.schema.Name, input, result, queryParam, nil, startTime))
	return result, nil
}

// Subscribe registers cb for events of the given type and returns the
// subscription id.
func (c *Collection) Subscribe(event PersistenceEventType, cb EventCallbackFunction) string {
	c.subMu.Lock()
	unsubscribe := c.bus.Subscribe(string(event), func(ctx context.Context, e PersistenceEvent) error {
		return cb(ctx, e)
	})
	id := uuid.New().String()
	c.subscriptions[id] = &SubscriptionInfo{
		ID:          id,
		Event:       event,
		unsubscribe: unsubscribe,
	}
	c.subMu.Unlock()

	c.emitEvent(createEvent(SubscriptionRegister, "subscribe", c.schema.Name,
		map[string]any{"event": event}, map[string]any{"subscriptionId": id}, nil, nil, time.Time{}))
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (c *Collection) Unsubscribe(id string) {
	c.subMu.Lock()
	info, ok := c.subscriptions[id]
	if ok {
		info.unsubscribe()
		delete(c.subscriptions, id)
	}
	c.subMu.Unlock()

	if ok {
		c.emitEvent(createEvent(SubscriptionUnregister, "unsubscribe", c.schema.Name,
			map[string]any{"subscriptionId": id}, nil, nil, nil, time.Time{}))
	}
}

// Subscriptions returns the active subscriptions.
func (c *Collection) Subscriptions() []SubscriptionInfo {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]SubscriptionInfo, 0, len(c.subscriptions))
	for _, info := range c.subscriptions {
		out = append(out, SubscriptionInfo{ID: info.ID, Event: info.Event})
	}
	return out
}
