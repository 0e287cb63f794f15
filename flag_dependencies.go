package posthog

import "fmt"

// evaluationCache memoizes resolved flag values (bool or variant string) by
// flag key for the duration of one outer evaluation call. It is created
// fresh per call and threaded explicitly through recursive evaluation so
// its lifetime is enforced by ownership, never persisted.
type evaluationCache map[string]interface{}

// matchFlagDependency evaluates a "flag evaluates to X" condition by
// resolving the upstream flag, memoizing the result, and comparing it to
// the condition value. The dependency chain is populated by the server when
// it builds the dependency graph; an empty chain is the signal that a cycle
// was detected upstream.
func (e *localEvaluator) matchFlagDependency(snapshot *FeatureFlagsSnapshot, property FlagProperty, distinctId string, groups map[string]string, personProperties map[string]interface{}, groupProperties map[string]map[string]interface{}, cache evaluationCache) (bool, error) {
	if len(property.DependencyChain) == 0 {
		return false, &InconclusiveMatchError{fmt.Sprintf("Circular dependency detected for flag '%s'", property.Key)}
	}

	dependedFlag, ok := snapshot.FlagsByKey[property.Key]
	if !ok {
		return false, &InconclusiveMatchError{fmt.Sprintf("Cannot evaluate flag dependency '%s' - flag not found in local flags", property.Key)}
	}

	value, cached := cache[property.Key]
	if !cached {
		var err error
		value, err = e.computeFlagLocally(snapshot, dependedFlag, distinctId, groups, personProperties, groupProperties, cache)
		if err != nil {
			return false, err
		}
		cache[property.Key] = value
	}

	return matchesDependencyValue(property.Value, value), nil
}

// matchesDependencyValue compares a resolved flag value (bool or variant
// string) to the value a dependency condition expects. Variant strings
// compare case-sensitively; an expected true matches any truthy resolution
// (true or a non-empty variant) while false matches only false or an empty
// string. Any type-mismatched comparison is false.
func matchesDependencyValue(expected, actual interface{}) bool {
	switch expected := expected.(type) {
	case string:
		actualStr, ok := actual.(string)
		return ok && actualStr == expected
	case bool:
		switch actual := actual.(type) {
		case bool:
			return actual == expected
		case string:
			return expected == (actual != "")
		}
		return false
	}
	return false
}
