package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ligustah/tgzget/internal/logging"
)

// Tally is the accumulator used for percentage progress: the running byte
// total and the last percentage that was logged.
type Tally struct {
	Bytes    uint64
	Reported float64
}

// Count is an UpdateFunc that keeps a plain running byte total.
func Count(total uint64, n int) uint64 {
	return total + uint64(n)
}

// PercentUpdate returns an UpdateFunc that logs progress against expected
// bytes. A line is logged whenever the percentage exceeds the last reported
// value by more than step; the reported watermark then moves to the current
// percentage. If expected is zero the size is unknown and only the byte
// total is kept.
func PercentUpdate(logger *slog.Logger, expected uint64, step float64) UpdateFunc[Tally] {
	return func(t Tally, n int) Tally {
		t.Bytes += uint64(n)
		if expected == 0 {
			return t
		}

		percent := 100 * (float64(t.Bytes) / float64(expected))
		if percent > t.Reported+step {
			t.Reported = percent
			logger.Log(context.Background(), logging.LevelTrace,
				fmt.Sprintf("read %d / %d bytes, (~%d%%)", t.Bytes, expected, uint64(percent)))
		}
		return t
	}
}

// FormatDuration formats a duration as a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
