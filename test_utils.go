package posthog

import "sync"

func boolPtr(b bool) *bool          { return &b }
func strPtr(s string) *string       { return &s }
func floatPtr(f float64) *float64   { return &f }
func uint8Ptr(u uint8) *uint8       { return &u }

func booleanFlag(key string, rollout *float64, properties ...FlagProperty) FeatureFlag {
	return FeatureFlag{
		Key:    key,
		Active: true,
		Filters: Filters{
			Groups: []FlagGroup{{Properties: properties, RolloutPercentage: rollout}},
		},
	}
}

// recordingNotifier captures flag-called events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []FlagCalledEvent
}

func (n *recordingNotifier) FlagCalled(event FlagCalledEvent) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func (n *recordingNotifier) last() FlagCalledEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

// stubRemoteEvaluator stands in for the transport layer's /flags/ endpoint.
type stubRemoteEvaluator struct {
	flagValue interface{}
	allFlags  map[string]interface{}
	err       error
	calls     int
}

func (s *stubRemoteEvaluator) EvaluateFlag(key, distinctId string, groups map[string]string, personProperties map[string]interface{}, groupProperties map[string]map[string]interface{}) (interface{}, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.flagValue, nil
}

func (s *stubRemoteEvaluator) EvaluateAllFlags(distinctId string, groups map[string]string, personProperties map[string]interface{}, groupProperties map[string]map[string]interface{}) (map[string]interface{}, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.allFlags, nil
}

func newTestClient(snapshot *FeatureFlagsSnapshot, config Config) *Client {
	client, err := NewClient(snapshot, config)
	if err != nil {
		panic(err)
	}
	return client
}
