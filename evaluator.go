package posthog

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
)

// longScale normalizes the 60-bit hash prefix into [0,1).
const longScale = float64(0xFFFFFFFFFFFFFFF)

// localEvaluator decides flags entirely offline against a snapshot. It is
// pure computation: no background work, no state beyond the derived
// property resolvers, every call-scoped cache passed in explicitly.
type localEvaluator struct {
	logger            Logger
	derivedProperties *derivedPropertyResolver
}

func newLocalEvaluator(logger Logger) *localEvaluator {
	return &localEvaluator{
		logger:            logger,
		derivedProperties: newDerivedPropertyResolver(),
	}
}

// calculateHash buckets a subject for a flag: SHA-1 over
// "{key}.{distinctId}{salt}", first 15 hex digits, scaled into [0,1). This
// exact construction is shared by the PostHog server and every other SDK;
// any deviation breaks cross-SDK consistency.
func calculateHash(key, distinctId, salt string) float64 {
	digest := sha1.Sum([]byte(key + "." + distinctId + salt))
	hexPrefix := hex.EncodeToString(digest[:])[:15]
	value, _ := strconv.ParseUint(hexPrefix, 16, 64)
	return float64(value) / longScale
}

// computeFlagLocally resolves one flag for one subject: false for inactive
// flags, group-level matching when the flag aggregates by group type, and
// person-level matching otherwise. Flags with experience continuity enabled
// are deliberately never evaluated locally.
func (e *localEvaluator) computeFlagLocally(snapshot *FeatureFlagsSnapshot, flag FeatureFlag, distinctId string, groups map[string]string, personProperties map[string]interface{}, groupProperties map[string]map[string]interface{}, cache evaluationCache) (interface{}, error) {
	if flag.EnsureExperienceContinuity != nil && *flag.EnsureExperienceContinuity {
		return nil, &RequiresServerEvaluationError{"flag has experience continuity enabled"}
	}
	if !flag.Active {
		return false, nil
	}

	if flag.Filters.AggregationGroupTypeIndex != nil {
		index := strconv.FormatUint(uint64(*flag.Filters.AggregationGroupTypeIndex), 10)
		groupName, ok := snapshot.GroupTypeMapping[index]
		if !ok {
			e.logger.Errorf("[FEATURE FLAGS] Unknown group type index %s for flag %s", index, flag.Key)
			return nil, &InconclusiveMatchError{"flag has unknown group type index"}
		}
		groupKey, ok := groups[groupName]
		if !ok {
			e.logger.Warnf("[FEATURE FLAGS] Can't compute group feature flag: %s without group name %q passed in", flag.Key, groupName)
			return false, nil
		}

		focused := make(map[string]interface{}, len(groupProperties[groupName])+1)
		for k, v := range groupProperties[groupName] {
			focused[k] = v
		}
		focused["$group_key"] = groupKey
		return e.matchFeatureFlagProperties(snapshot, flag, groupKey, focused, groups, personProperties, groupProperties, cache)
	}

	return e.matchFeatureFlagProperties(snapshot, flag, distinctId, personProperties, groups, personProperties, groupProperties, cache)
}

// matchFeatureFlagProperties walks the flag's condition groups strictly in
// list order; the first matching group decides the value, including its
// variant override. When no group matches and at least one was
// inconclusive, the flag is inconclusive as a whole.
func (e *localEvaluator) matchFeatureFlagProperties(snapshot *FeatureFlagsSnapshot, flag FeatureFlag, subjectId string, properties map[string]interface{}, groups map[string]string, personProperties map[string]interface{}, groupProperties map[string]map[string]interface{}, cache evaluationCache) (interface{}, error) {
	inconclusive := false
	for _, group := range flag.Filters.Groups {
		match, err := e.isGroupMatch(snapshot, flag, subjectId, group, properties, groups, personProperties, groupProperties, cache)
		if err != nil {
			if errors.Is(err, ErrInconclusiveMatch) {
				inconclusive = true
				continue
			}
			return nil, err
		}
		if !match {
			continue
		}

		if group.Variant != nil && flagHasVariant(flag, *group.Variant) {
			return *group.Variant, nil
		}
		if variant := e.getMatchingVariant(flag, subjectId); variant != "" {
			return variant, nil
		}
		return true, nil
	}

	if inconclusive {
		return nil, &InconclusiveMatchError{"can't determine if feature flag is enabled or not with given properties"}
	}
	return false, nil
}

// isGroupMatch evaluates one condition group: every property must match
// (AND), then the rollout percentage gates the subject by hash. A group
// with no properties matches on rollout alone; a nil rollout always
// matches. The hash fails the rollout only when it strictly exceeds the
// threshold, matching the server comparison.
func (e *localEvaluator) isGroupMatch(snapshot *FeatureFlagsSnapshot, flag FeatureFlag, subjectId string, group FlagGroup, properties map[string]interface{}, groups map[string]string, personProperties map[string]interface{}, groupProperties map[string]map[string]interface{}, cache evaluationCache) (bool, error) {
	if len(group.Properties) > 0 {
		for _, property := range group.Properties {
			var match bool
			var err error
			switch property.Type {
			case "cohort":
				match, err = matchCohort(property, properties, snapshot.Cohorts, make(map[string]bool))
			case "flag":
				match, err = e.matchFlagDependency(snapshot, property, subjectId, groups, personProperties, groupProperties, cache)
			default:
				match, err = matchProperty(property, properties)
			}
			if err != nil {
				return false, err
			}
			if !match {
				return false, nil
			}
		}
		if group.RolloutPercentage == nil {
			return true, nil
		}
	}

	if group.RolloutPercentage != nil && calculateHash(flag.Key, subjectId, "") > *group.RolloutPercentage/100 {
		return false, nil
	}
	return true, nil
}

// getMatchingVariant buckets the subject into the flag's variant table with
// the "variant" salt. The empty string means no variant: either the flag is
// not multivariate or the hash fell beyond the cumulative rollout sum.
func (e *localEvaluator) getMatchingVariant(flag FeatureFlag, subjectId string) string {
	if flag.Filters.Multivariate == nil {
		return ""
	}
	hashValue := calculateHash(flag.Key, subjectId, "variant")
	for _, lookup := range variantLookupTable(flag.Filters.Multivariate.Variants) {
		if hashValue >= lookup.min && hashValue < lookup.max {
			return lookup.key
		}
	}
	return ""
}

type variantRange struct {
	key      string
	min, max float64
}

// variantLookupTable partitions [0,1) into contiguous [min,max) ranges in
// variant list order. The percentages are not clamped: a sum over 100
// simply makes trailing variants unreachable.
func variantLookupTable(variants []FlagVariant) []variantRange {
	table := make([]variantRange, 0, len(variants))
	min := 0.0
	for _, variant := range variants {
		max := min + variant.RolloutPercentage/100
		table = append(table, variantRange{key: variant.Key, min: min, max: max})
		min = max
	}
	return table
}

func flagHasVariant(flag FeatureFlag, key string) bool {
	if flag.Filters.Multivariate == nil {
		return false
	}
	for _, variant := range flag.Filters.Multivariate.Variants {
		if variant.Key == key {
			return true
		}
	}
	return false
}
