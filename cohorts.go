package posthog

import (
	"errors"
	"fmt"
)

// matchCohort expands a cohort-type condition into the referenced cohort's
// boolean tree and evaluates it against the property bag. seen carries the
// cohort ids already on the expansion path so self or mutual references are
// reported as inconclusive instead of recursing forever.
func matchCohort(property FlagProperty, properties map[string]interface{}, cohorts map[string]Cohort, seen map[string]bool) (bool, error) {
	cohortID := interfaceToString(property.Value)
	cohort, ok := cohorts[cohortID]
	if !ok {
		return false, &InconclusiveMatchError{"can't match cohort without a given cohort property value"}
	}
	if seen[cohortID] {
		return false, &InconclusiveMatchError{fmt.Sprintf("circular cohort reference detected for cohort '%s'", cohortID)}
	}
	seen[cohortID] = true
	defer delete(seen, cohortID)
	return matchCohortTree(cohort, properties, cohorts, seen)
}

// matchCohortTree evaluates one AND/OR node of a cohort tree. AND
// short-circuits on a decided false branch and OR on a decided true branch;
// an inconclusive branch only makes the node inconclusive when no other
// branch decides it first.
func matchCohortTree(node Cohort, properties map[string]interface{}, cohorts map[string]Cohort, seen map[string]bool) (bool, error) {
	if len(node.Values) == 0 {
		return true, nil
	}
	if !node.isGroup() {
		return false, &InconclusiveMatchError{fmt.Sprintf("cohort group type must be AND or OR, got: %s", node.Type)}
	}

	inconclusive := false
	for _, value := range node.Values {
		matches, err := matchCohortValue(value, properties, cohorts, seen)
		if err != nil {
			if errors.Is(err, ErrInconclusiveMatch) {
				inconclusive = true
				continue
			}
			return false, err
		}
		if node.Type == "AND" && !matches {
			return false, nil
		}
		if node.Type == "OR" && matches {
			return true, nil
		}
	}

	if inconclusive {
		return false, &InconclusiveMatchError{"can't match cohort without a given cohort property value"}
	}
	// Every branch matched for AND, none did for OR.
	return node.Type == "AND", nil
}

func matchCohortValue(value Cohort, properties map[string]interface{}, cohorts map[string]Cohort, seen map[string]bool) (bool, error) {
	if value.isGroup() {
		return matchCohortTree(value, properties, cohorts, seen)
	}

	var matches bool
	var err error
	if value.Type == "cohort" {
		matches, err = matchCohort(value.asProperty(), properties, cohorts, seen)
	} else {
		matches, err = matchProperty(value.asProperty(), properties)
	}
	if err != nil {
		// A negated inconclusive leaf stays inconclusive, it is never
		// coerced to a truth value.
		return false, err
	}
	if value.Negation {
		return !matches, nil
	}
	return matches, nil
}
