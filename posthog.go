// Package posthog implements local evaluation of PostHog feature flags:
// given a snapshot of flag definitions fetched from the PostHog service, it
// decides offline whether a person or group matches a flag's targeting rules
// and which variant they receive. Bucketing is bit-identical to the PostHog
// server and every other PostHog SDK.
package posthog

import "time"

const (
	// Capacity of the per-subject "$feature_flag_called" dedup structure.
	// Once this many subjects have been tracked the whole structure resets.
	defaultMaxReportedFlagSubjects = 50000
)

// Allows for overriding in tests
var now = time.Now
