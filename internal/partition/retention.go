package partition

import "time"

// MaxRetentionDays bounds retention windows to keep cutoffs representable.
const MaxRetentionDays = 1_000_000

// Cutoff returns the retention boundary for now: partitions created strictly
// before it are expired. days must be in [0, MaxRetentionDays].
func Cutoff(now time.Time, days int) time.Time {
	// AddDate on a UTC time moves by exact 24h days and does not overflow the
	// way a time.Duration product does past ~106,751 days.
	return now.UTC().AddDate(0, 0, -days)
}
