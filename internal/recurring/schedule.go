package recurring

import (
	"time"

	"pennywise/internal/apperr"
	"pennywise/internal/model"
)

const day = 24 * time.Hour

// Fixed offsets per frequency. Monthly and yearly are day counts, not
// calendar arithmetic: a monthly rule drifts against month boundaries.
var frequencyOffsets = map[model.Frequency]time.Duration{
	model.FrequencyDaily:   day,
	model.FrequencyWeekly:  7 * day,
	model.FrequencyMonthly: 30 * day,
	model.FrequencyYearly:  365 * day,
}

// NextDue returns from shifted by the frequency's fixed offset, in UTC.
func NextDue(frequency model.Frequency, from time.Time) (time.Time, error) {
	offset, ok := frequencyOffsets[frequency]
	if !ok {
		return time.Time{}, apperr.Validation("unsupported frequency %q", frequency)
	}
	return from.UTC().Add(offset), nil
}

// nextDueAfter anchors on the rule's own schedule so cadence does not drift
// with execution latency, falling back to executedAt when the rule is more
// than one cycle behind. The result is always after executedAt.
func nextDueAfter(frequency model.Frequency, scheduled, executedAt time.Time) (time.Time, error) {
	next, err := NextDue(frequency, scheduled)
	if err != nil {
		return time.Time{}, err
	}
	if next.After(executedAt) {
		return next, nil
	}
	return NextDue(frequency, executedAt)
}

// Normalize puts t in UTC at microsecond precision, the resolution both
// stores round-trip exactly.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
