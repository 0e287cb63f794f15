package posthog

import (
	"errors"
	"fmt"
	"sync"
)

// RemoteEvaluator is the client's hook into the transport layer for flags
// local data cannot decide. It is consulted only when local evaluation is
// inconclusive and OnlyEvaluateLocally was not requested; its failures feed
// telemetry error tags, never evaluation results.
type RemoteEvaluator interface {
	EvaluateFlag(key, distinctId string, groups map[string]string, personProperties map[string]interface{}, groupProperties map[string]map[string]interface{}) (interface{}, error)
	EvaluateAllFlags(distinctId string, groups map[string]string, personProperties map[string]interface{}, groupProperties map[string]map[string]interface{}) (map[string]interface{}, error)
}

// Config carries the client's collaborators. Every field is optional.
type Config struct {
	Logger             Logger
	RemoteEvaluator    RemoteEvaluator
	FlagCalledNotifier FlagCalledNotifier
	// MaxReportedFlagSubjects overrides the capacity of the per-subject
	// flag-called dedup structure, defaulting to 50000.
	MaxReportedFlagSubjects int
}

// Client evaluates feature flags against the current snapshot. It holds no
// hidden global state; hosts create instances explicitly and hand them the
// snapshots the transport layer fetches.
type Client struct {
	mu        sync.RWMutex
	snapshot  *FeatureFlagsSnapshot
	evaluator *localEvaluator

	remote        RemoteEvaluator
	notifier      FlagCalledNotifier
	logger        Logger
	reportedFlags *sizeLimitedMap
}

// NewClient creates a client for the given snapshot. The snapshot may be
// empty but not nil; replace it later with ReloadFeatureFlags.
func NewClient(snapshot *FeatureFlagsSnapshot, config Config) (*Client, error) {
	if snapshot == nil {
		return nil, errors.New("a non-nil feature flags snapshot is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = newDefaultLogger()
	}
	maxSubjects := config.MaxReportedFlagSubjects
	if maxSubjects <= 0 {
		maxSubjects = defaultMaxReportedFlagSubjects
	}
	return &Client{
		snapshot:      snapshot,
		evaluator:     newLocalEvaluator(logger),
		remote:        config.RemoteEvaluator,
		notifier:      config.FlagCalledNotifier,
		logger:        logger,
		reportedFlags: newSizeLimitedMap(maxSubjects),
	}, nil
}

// ReloadFeatureFlags atomically replaces the flag snapshot. In-flight
// evaluations keep the snapshot they started with.
func (c *Client) ReloadFeatureFlags(snapshot *FeatureFlagsSnapshot) {
	if snapshot == nil {
		return
	}
	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()
}

func (c *Client) currentSnapshot() *FeatureFlagsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// FeatureFlagPayload identifies one flag evaluation: the flag key, the
// subject, and the property bags targeting rules run against.
type FeatureFlagPayload struct {
	Key                 string
	DistinctId          string
	Groups              map[string]string
	PersonProperties    map[string]interface{}
	GroupProperties     map[string]map[string]interface{}
	OnlyEvaluateLocally bool
	// SendFeatureFlagEvents defaults to true when nil.
	SendFeatureFlagEvents *bool
}

func (p *FeatureFlagPayload) validate() error {
	if p.Key == "" {
		return errors.New("flag key is required")
	}
	if p.DistinctId == "" {
		return errors.New("distinct id is required")
	}
	return nil
}

func (p *FeatureFlagPayload) sendEvents() bool {
	return p.SendFeatureFlagEvents == nil || *p.SendFeatureFlagEvents
}

// FeatureFlagPayloadNoKey is the GetAllFlags variant of FeatureFlagPayload.
type FeatureFlagPayloadNoKey struct {
	DistinctId          string
	Groups              map[string]string
	PersonProperties    map[string]interface{}
	GroupProperties     map[string]map[string]interface{}
	OnlyEvaluateLocally bool
}

func (p *FeatureFlagPayloadNoKey) validate() error {
	if p.DistinctId == "" {
		return errors.New("distinct id is required")
	}
	return nil
}

// GetFeatureFlag resolves one flag for a subject: a variant key, true, or
// false. When local data cannot decide and a remote evaluator is
// configured, the flag falls back to remote evaluation unless
// OnlyEvaluateLocally is set, in which case the inconclusive signal is
// returned as the error with a nil value.
func (c *Client) GetFeatureFlag(p FeatureFlagPayload) (interface{}, error) {
	result, err := c.resolveFlag(p)
	if err != nil {
		return nil, err
	}
	return result.Value(), nil
}

// GetFeatureFlagPayload resolves a flag and returns the JSON payload bound
// to the matched variant, or to "true" for boolean matches. Empty when the
// flag is off or carries no payload for the resolved value.
func (c *Client) GetFeatureFlagPayload(p FeatureFlagPayload) (string, error) {
	result, err := c.resolveFlag(p)
	if err != nil {
		return "", err
	}
	return result.Payload, nil
}

// IsFeatureEnabled reports whether the flag is on for the subject: any
// variant counts as enabled. A nil result means the flag could not be
// resolved at all.
func (c *Client) IsFeatureEnabled(p FeatureFlagPayload) (interface{}, error) {
	value, err := c.GetFeatureFlag(p)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	return value != false, nil
}

func (c *Client) resolveFlag(p FeatureFlagPayload) (EvaluationResult, error) {
	if err := p.validate(); err != nil {
		return EvaluationResult{}, err
	}

	snapshot := c.currentSnapshot()
	personProperties := c.evaluator.preparePersonProperties(p.DistinctId, p.PersonProperties)

	var value interface{}
	var evalErr error
	flag, found := snapshot.FlagsByKey[p.Key]
	if !found {
		evalErr = fmt.Errorf("%w in local flags: %s", ErrFlagNotFound, p.Key)
	} else {
		value, evalErr = c.evaluator.computeFlagLocally(snapshot, flag, p.DistinctId, p.Groups, personProperties, p.GroupProperties, make(evaluationCache))
	}

	tag := ""
	if evalErr != nil {
		value = nil
		if !p.OnlyEvaluateLocally && c.remote != nil {
			remoteValue, remoteErr := c.remote.EvaluateFlag(p.Key, p.DistinctId, p.Groups, p.PersonProperties, p.GroupProperties)
			if remoteErr != nil {
				tag = errorTag(remoteErr)
				evalErr = remoteErr
			} else {
				value = remoteValue
				evalErr = nil
			}
		}
	}

	result := buildResult(p.Key, flag, value)
	if p.sendEvents() {
		c.reportFlagCalled(p.DistinctId, p.Key, value, result.Payload, tag)
	}
	if evalErr != nil {
		return EvaluationResult{}, evalErr
	}
	return result, nil
}

func buildResult(key string, flag FeatureFlag, value interface{}) EvaluationResult {
	result := EvaluationResult{Key: key}
	switch v := value.(type) {
	case string:
		result.Enabled = true
		result.Variant = v
		result.Payload = flag.Filters.Payloads[v]
	case bool:
		result.Enabled = v
		if v {
			result.Payload = flag.Filters.Payloads["true"]
		}
	}
	return result
}

// GetAllFlags evaluates every local flag in one pass sharing a single
// evaluation cache, so flags reached through dependencies are computed at
// most once. Flags local data cannot decide fall back to remote evaluation
// together unless OnlyEvaluateLocally is set; remote results override local
// ones. Calling twice with an unchanged snapshot yields identical results.
func (c *Client) GetAllFlags(p FeatureFlagPayloadNoKey) (map[string]interface{}, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	snapshot := c.currentSnapshot()
	personProperties := c.evaluator.preparePersonProperties(p.DistinctId, p.PersonProperties)

	results := make(map[string]interface{}, len(snapshot.Flags))
	cache := make(evaluationCache)
	fallbackNeeded := false

	for _, flag := range snapshot.Flags {
		if value, ok := cache[flag.Key]; ok {
			results[flag.Key] = value
			continue
		}
		value, err := c.evaluator.computeFlagLocally(snapshot, flag, p.DistinctId, p.Groups, personProperties, p.GroupProperties, cache)
		if err != nil {
			c.logger.Logf("unable to compute flag %s locally: %v", flag.Key, err)
			fallbackNeeded = true
			continue
		}
		cache[flag.Key] = value
		results[flag.Key] = value
	}

	if !fallbackNeeded {
		return results, nil
	}
	if p.OnlyEvaluateLocally || c.remote == nil {
		return results, &InconclusiveMatchError{"some flags could not be evaluated with local data"}
	}

	remoteFlags, err := c.remote.EvaluateAllFlags(p.DistinctId, p.Groups, p.PersonProperties, p.GroupProperties)
	if err != nil {
		return results, err
	}
	for key, value := range remoteFlags {
		results[key] = value
	}
	return results, nil
}

// preparePersonProperties builds the person bag a flag is matched against:
// distinct_id is always present (an explicit property wins), and derivable
// GeoIP/user-agent properties are filled in.
func (e *localEvaluator) preparePersonProperties(distinctId string, personProperties map[string]interface{}) map[string]interface{} {
	properties := make(map[string]interface{}, len(personProperties)+1)
	properties["distinct_id"] = distinctId
	for k, v := range personProperties {
		properties[k] = v
	}
	return e.derivedProperties.enrich(properties)
}
