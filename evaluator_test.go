package posthog

import (
	"errors"
	"fmt"
	"testing"
)

// Reference values shared across all PostHog SDKs; any change here breaks
// cross-SDK bucketing consistency.
func TestCalculateHashGoldenValues(t *testing.T) {
	if h := calculateHash("a", "b", "some_salt"); h != 0.9090444351173892 {
		t.Errorf("hash construction drifted from the reference: got %v", h)
	}
	if h := calculateHash("simple-flag", "some-distinct-id", ""); h != 0.477755795905271 {
		t.Errorf("hash construction drifted from the reference: got %v", h)
	}
}

func TestCalculateHashDeterminism(t *testing.T) {
	first := calculateHash("flag", "user", "variant")
	for i := 0; i < 100; i++ {
		if h := calculateHash("flag", "user", "variant"); h != first {
			t.Fatalf("hash is not a pure function: %v != %v", h, first)
		}
	}
	if first < 0 || first >= 1 {
		t.Errorf("hash out of [0,1): %v", first)
	}
}

// Exact yes/no sequence for distinct_id_0..99 against a 45%% rollout,
// generated from the reference hash construction.
const rolloutGolden45 = "0110100101011010001101001011000111100000011011000110000101010110101011001001010010001101101111101100"

func TestSimpleFlagRolloutGoldenVector(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := booleanFlag("simple-flag", floatPtr(45))
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, nil)

	for i := 0; i < 100; i++ {
		distinctId := fmt.Sprintf("distinct_id_%d", i)
		value, err := evaluator.computeFlagLocally(snapshot, flag, distinctId, nil, nil, nil, make(evaluationCache))
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", distinctId, err)
		}
		expected := rolloutGolden45[i] == '1'
		if value != expected {
			t.Errorf("%s: expected %v, got %v", distinctId, expected, value)
		}
	}
}

func TestRolloutPercentageConvergence(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := booleanFlag("simple-flag", floatPtr(45))
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, nil)

	matched := 0
	for i := 0; i < 1000; i++ {
		value, err := evaluator.computeFlagLocally(snapshot, flag, fmt.Sprintf("distinct_id_%d", i), nil, nil, nil, make(evaluationCache))
		if err != nil {
			t.Fatal(err)
		}
		if value == true {
			matched++
		}
	}
	// Exact count from the reference hash construction; ~45% of 1000.
	if matched != 446 {
		t.Errorf("expected 446 of 1000 subjects inside a 45%% rollout, got %d", matched)
	}
}

func TestRolloutBoundary(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	// hash("simple-flag", "some-distinct-id") == 0.4777..., so a 50% rollout
	// includes the subject and a 45% rollout does not.
	snapshot := NewFeatureFlagsSnapshot(nil, nil, nil)

	in := booleanFlag("simple-flag", floatPtr(50))
	value, err := evaluator.computeFlagLocally(snapshot, in, "some-distinct-id", nil, nil, nil, make(evaluationCache))
	if err != nil || value != true {
		t.Errorf("expected subject inside 50%% rollout, got %v err=%v", value, err)
	}

	out := booleanFlag("simple-flag", floatPtr(45))
	value, err = evaluator.computeFlagLocally(snapshot, out, "some-distinct-id", nil, nil, nil, make(evaluationCache))
	if err != nil || value != false {
		t.Errorf("expected subject outside 45%% rollout, got %v err=%v", value, err)
	}
}

func multivariateTestFlag() FeatureFlag {
	return FeatureFlag{
		Key:    "beta-feature",
		Active: true,
		Filters: Filters{
			Groups: []FlagGroup{{RolloutPercentage: nil}},
			Multivariate: &Variants{Variants: []FlagVariant{
				{Key: "first-variant", RolloutPercentage: 25},
				{Key: "second-variant", RolloutPercentage: 25},
				{Key: "third-variant", RolloutPercentage: 50},
			}},
		},
	}
}

func TestVariantBucketingGoldenValues(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := multivariateTestFlag()

	cases := map[string]string{
		"user_0":     "third-variant",
		"user_1":     "second-variant",
		"user_5":     "first-variant",
		"example_id": "third-variant",
	}
	for distinctId, expected := range cases {
		if variant := evaluator.getMatchingVariant(flag, distinctId); variant != expected {
			t.Errorf("%s: expected variant %q, got %q", distinctId, expected, variant)
		}
	}
}

func TestVariantPartitionExhaustive(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := multivariateTestFlag()

	seen := map[string]int{}
	for i := 0; i < 1000; i++ {
		variant := evaluator.getMatchingVariant(flag, fmt.Sprintf("id_%d", i))
		if variant == "" {
			t.Fatalf("id_%d mapped to no variant although percentages sum to 100", i)
		}
		seen[variant]++
	}
	if len(seen) != 3 {
		t.Errorf("expected all three variants to be reachable, got %v", seen)
	}
}

func TestVariantSumBelowOneHundred(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := FeatureFlag{
		Key:    "beta-feature",
		Active: true,
		Filters: Filters{
			Groups: []FlagGroup{{RolloutPercentage: nil}},
			Multivariate: &Variants{Variants: []FlagVariant{
				{Key: "a", RolloutPercentage: 20},
				{Key: "b", RolloutPercentage: 20},
			}},
		},
	}

	// hash("beta-feature", "user_0", "variant") == 0.9901..., beyond the
	// cumulative 40%: no variant, but the flag still resolves to true.
	if variant := evaluator.getMatchingVariant(flag, "user_0"); variant != "" {
		t.Errorf("expected no variant beyond the cumulative sum, got %q", variant)
	}
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, nil)
	value, err := evaluator.computeFlagLocally(snapshot, flag, "user_0", nil, nil, nil, make(evaluationCache))
	if err != nil || value != true {
		t.Errorf("expected plain true when the hash falls beyond all variants, got %v err=%v", value, err)
	}
}

func TestInactiveFlag(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := booleanFlag("off-flag", nil)
	flag.Active = false
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, nil)

	value, err := evaluator.computeFlagLocally(snapshot, flag, "anyone", nil, nil, nil, make(evaluationCache))
	if err != nil || value != false {
		t.Errorf("expected inactive flag to be false, got %v err=%v", value, err)
	}
}

func TestExperienceContinuityFlagRequiresServer(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := booleanFlag("continuity-flag", nil)
	flag.EnsureExperienceContinuity = boolPtr(true)
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, nil)

	_, err := evaluator.computeFlagLocally(snapshot, flag, "anyone", nil, nil, nil, make(evaluationCache))
	if !errors.Is(err, ErrRequiresServerEvaluation) {
		t.Errorf("expected experience continuity flag to defer to the server, got %v", err)
	}
}

func TestFirstMatchWins(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := FeatureFlag{
		Key:    "beta-feature",
		Active: true,
		Filters: Filters{
			Groups: []FlagGroup{
				{
					Properties: []FlagProperty{{Key: "email", Operator: "icontains", Value: "@example.com"}},
					Variant:    strPtr("first-variant"),
				},
				{RolloutPercentage: floatPtr(100), Variant: strPtr("second-variant")},
			},
			Multivariate: &Variants{Variants: []FlagVariant{
				{Key: "first-variant", RolloutPercentage: 50},
				{Key: "second-variant", RolloutPercentage: 50},
			}},
		},
	}
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, nil)

	// Both groups match; the first one's override wins.
	value, err := evaluator.computeFlagLocally(snapshot, flag, "user", nil,
		map[string]interface{}{"email": "user@example.com"}, nil, make(evaluationCache))
	if err != nil || value != "first-variant" {
		t.Errorf("expected first matching group's variant, got %v err=%v", value, err)
	}

	// Only the second group matches once the email condition fails.
	value, err = evaluator.computeFlagLocally(snapshot, flag, "user", nil,
		map[string]interface{}{"email": "user@other.org"}, nil, make(evaluationCache))
	if err != nil || value != "second-variant" {
		t.Errorf("expected second group's variant, got %v err=%v", value, err)
	}
}

func TestInvalidVariantOverrideFallsThrough(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := multivariateTestFlag()
	flag.Filters.Groups = []FlagGroup{{Variant: strPtr("nonexistent-variant")}}
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, nil)

	value, err := evaluator.computeFlagLocally(snapshot, flag, "user_0", nil, nil, nil, make(evaluationCache))
	if err != nil || value != "third-variant" {
		t.Errorf("expected invalid override to fall through to bucketing, got %v err=%v", value, err)
	}
}

func TestAllGroupsInconclusive(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := booleanFlag("gated-flag", nil, FlagProperty{Key: "plan", Operator: "exact", Value: "pro"})
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, nil)

	_, err := evaluator.computeFlagLocally(snapshot, flag, "user", nil, nil, nil, make(evaluationCache))
	if !errors.Is(err, ErrInconclusiveMatch) {
		t.Errorf("expected inconclusive evaluation when every group is inconclusive, got %v", err)
	}
}

func TestGroupLevelFlag(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := FeatureFlag{
		Key:    "group-flag",
		Active: true,
		Filters: Filters{
			AggregationGroupTypeIndex: uint8Ptr(0),
			Groups: []FlagGroup{{
				Properties: []FlagProperty{{Key: "name", Operator: "exact", Value: "Amazon", Type: "group"}},
			}},
		},
	}
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, map[string]string{"0": "company"})

	groups := map[string]string{"company": "amazon_1"}
	groupProperties := map[string]map[string]interface{}{"company": {"name": "Amazon"}}

	value, err := evaluator.computeFlagLocally(snapshot, flag, "user", groups, nil, groupProperties, make(evaluationCache))
	if err != nil || value != true {
		t.Errorf("expected matching group flag, got %v err=%v", value, err)
	}

	value, err = evaluator.computeFlagLocally(snapshot, flag, "user", groups, nil,
		map[string]map[string]interface{}{"company": {"name": "Netflix"}}, make(evaluationCache))
	if err != nil || value != false {
		t.Errorf("expected non-matching group properties to be false, got %v err=%v", value, err)
	}

	// No group key passed in for the flag's group type.
	value, err = evaluator.computeFlagLocally(snapshot, flag, "user", nil, nil, groupProperties, make(evaluationCache))
	if err != nil || value != false {
		t.Errorf("expected false without a group key, got %v err=%v", value, err)
	}
}

func TestGroupFlagUnknownTypeIndex(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := FeatureFlag{
		Key:     "group-flag",
		Active:  true,
		Filters: Filters{AggregationGroupTypeIndex: uint8Ptr(7), Groups: []FlagGroup{{}}},
	}
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, map[string]string{"0": "company"})

	_, err := evaluator.computeFlagLocally(snapshot, flag, "user", map[string]string{"company": "c"}, nil, nil, make(evaluationCache))
	if !errors.Is(err, ErrInconclusiveMatch) {
		t.Errorf("expected unknown group type index to be inconclusive, got %v", err)
	}
}

func TestGroupKeyIsMatchable(t *testing.T) {
	evaluator := newLocalEvaluator(newDefaultLogger())
	flag := FeatureFlag{
		Key:    "group-flag",
		Active: true,
		Filters: Filters{
			AggregationGroupTypeIndex: uint8Ptr(0),
			Groups: []FlagGroup{{
				Properties: []FlagProperty{{Key: "$group_key", Operator: "exact", Value: "amazon_1", Type: "group"}},
			}},
		},
	}
	snapshot := NewFeatureFlagsSnapshot([]FeatureFlag{flag}, nil, map[string]string{"0": "company"})

	value, err := evaluator.computeFlagLocally(snapshot, flag, "user",
		map[string]string{"company": "amazon_1"}, nil, nil, make(evaluationCache))
	if err != nil || value != true {
		t.Errorf("expected $group_key to be matchable, got %v err=%v", value, err)
	}
}
