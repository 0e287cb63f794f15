package posthog

// FeatureFlag is one immutable flag definition fetched from PostHog. Flag
// objects are never mutated after load; snapshots are replaced wholesale.
type FeatureFlag struct {
	ID                         int     `json:"id"`
	TeamID                     int     `json:"team_id"`
	Key                        string  `json:"key"`
	Name                       string  `json:"name"`
	Active                     bool    `json:"active"`
	IsSimpleFlag               bool    `json:"is_simple_flag"`
	RolloutPercentage          *uint8  `json:"rollout_percentage"`
	EnsureExperienceContinuity *bool   `json:"ensure_experience_continuity"`
	Filters                    Filters `json:"filters"`
}

// Filters holds a flag's targeting rules: ordered condition groups, an
// optional multivariate table, per-value payloads, and the group type index
// for group-level flags.
type Filters struct {
	AggregationGroupTypeIndex *uint8            `json:"aggregation_group_type_index"`
	Groups                    []FlagGroup       `json:"groups"`
	Multivariate              *Variants         `json:"multivariate"`
	Payloads                  map[string]string `json:"payloads"`
}

// FlagGroup is one condition group: properties combine with AND, and the
// optional rollout percentage gates the group after the properties match. A
// nil rollout means the group always matches once its properties do.
type FlagGroup struct {
	Properties        []FlagProperty `json:"properties"`
	RolloutPercentage *float64       `json:"rollout_percentage"`
	Variant           *string        `json:"variant"`
}

// FlagProperty is one atomic targeting predicate. Type selects the matcher:
// "person" and "group" compare against the property bag, "cohort" expands a
// named cohort, and "flag" evaluates another flag. For flag dependencies the
// server ships the already-resolved DependencyChain; an empty chain marks a
// circular dependency detected upstream.
type FlagProperty struct {
	Key             string      `json:"key"`
	Operator        string      `json:"operator"`
	Value           interface{} `json:"value"`
	Type            string      `json:"type"`
	Negation        bool        `json:"negation"`
	DependencyChain []string    `json:"dependency_chain"`
}

type Variants struct {
	Variants []FlagVariant `json:"variants"`
}

// FlagVariant is one bucket of a multivariate flag. The ordered variant list
// partitions [0,1) into contiguous ranges; the percentages need not sum to
// 100, any excess simply leaves trailing hash values unassigned.
type FlagVariant struct {
	Key               string  `json:"key"`
	Name              string  `json:"name"`
	RolloutPercentage float64 `json:"rollout_percentage"`
}

// Cohort is a reusable audience segment: a boolean tree of conditions. A
// node is either a group (Type "AND"/"OR" with Values) or a leaf predicate
// (Type "person"/"cohort" with Key/Operator/Value). Leaves of type "cohort"
// reference other cohorts by id, so trees can nest and must be walked with
// cycle detection.
type Cohort struct {
	Type   string   `json:"type"`
	Values []Cohort `json:"values,omitempty"`

	Key      string      `json:"key,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`
	Negation bool        `json:"negation,omitempty"`
}

func (c Cohort) isGroup() bool {
	return c.Type == "AND" || c.Type == "OR"
}

func (c Cohort) asProperty() FlagProperty {
	return FlagProperty{
		Key:      c.Key,
		Operator: c.Operator,
		Value:    c.Value,
		Type:     c.Type,
		Negation: c.Negation,
	}
}

// FeatureFlagsSnapshot is the immutable unit the transport layer hands to
// the client: every local flag plus the cohort definitions and group type
// mapping they reference. Snapshots are swapped atomically on reload; an
// in-flight evaluation always sees one consistent snapshot.
type FeatureFlagsSnapshot struct {
	Flags            []FeatureFlag
	FlagsByKey       map[string]FeatureFlag
	Cohorts          map[string]Cohort
	GroupTypeMapping map[string]string
}

// NewFeatureFlagsSnapshot indexes flags by key and assembles a snapshot.
// Cohorts and groupTypeMapping may be nil when the flag set references
// neither.
func NewFeatureFlagsSnapshot(flags []FeatureFlag, cohorts map[string]Cohort, groupTypeMapping map[string]string) *FeatureFlagsSnapshot {
	byKey := make(map[string]FeatureFlag, len(flags))
	for _, flag := range flags {
		byKey[flag.Key] = flag
	}
	return &FeatureFlagsSnapshot{
		Flags:            flags,
		FlagsByKey:       byKey,
		Cohorts:          cohorts,
		GroupTypeMapping: groupTypeMapping,
	}
}

// EvaluationResult is one resolved flag for a subject. Value() is the value
// reported on "$feature_flag_called" events: the variant when one was
// assigned, the enabled bool otherwise.
type EvaluationResult struct {
	Key     string
	Enabled bool
	Variant string
	Payload string
}

func (r EvaluationResult) Value() interface{} {
	if r.Variant != "" {
		return r.Variant
	}
	return r.Enabled
}
