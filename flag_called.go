package posthog

import (
	"time"

	"github.com/google/uuid"
)

// FlagCalledEvent is the "$feature_flag_called" notification emitted the
// first time a flag is resolved for a subject. Delivery is fire and forget;
// it never blocks or fails flag evaluation.
type FlagCalledEvent struct {
	Id         string
	Timestamp  time.Time
	DistinctId string
	Key        string
	// Value is the resolved flag value (bool or variant string), nil when
	// evaluation failed.
	Value    interface{}
	Variant  string
	Payload  string
	ErrorTag string
}

// FlagCalledNotifier receives flag-called notifications, typically to queue
// them for capture. Implementations must tolerate concurrent calls from
// whatever synchronization discipline the host applies to the client.
type FlagCalledNotifier interface {
	FlagCalled(event FlagCalledEvent)
}

// reportFlagCalled emits at most one notification per (subject, flag),
// deduplicated by the size-limited map. Notifier panics are logged and
// swallowed so telemetry can never break evaluation.
func (c *Client) reportFlagCalled(distinctId, key string, value interface{}, payload, tag string) {
	if c.notifier == nil {
		return
	}
	if !c.reportedFlags.add(distinctId, key) {
		return
	}

	variant, _ := value.(string)
	event := FlagCalledEvent{
		Id:         uuid.NewString(),
		Timestamp:  now(),
		DistinctId: distinctId,
		Key:        key,
		Value:      value,
		Variant:    variant,
		Payload:    payload,
		ErrorTag:   tag,
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("flag called notifier panicked: %v", r)
		}
	}()
	c.notifier.FlagCalled(event)
}
