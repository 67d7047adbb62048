package lifecycle

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
)

// ProgressLabel describes rec for display at now. In-progress records get an
// elapsed-time narrative; terminal records show their stored message. The
// result is HTML-escaped.
func ProgressLabel(rec models.MigrationRecord, now time.Time) string {
	if rec.Status != models.StatusInProgress {
		return EscapeHTML(rec.Message)
	}
	if rec.StartTime == 0 {
		return "Starting migration... You can navigate away."
	}

	elapsed := int64(rec.Elapsed(now) / time.Second)
	if elapsed < 60 {
		return fmt.Sprintf("Processing... %s elapsed. You can navigate away.", plural(elapsed, "second"))
	}

	minutes, seconds := elapsed/60, elapsed%60
	if minutes < 5 && seconds > 0 {
		return fmt.Sprintf("Processing... %s %s elapsed. You can navigate away.", plural(minutes, "minute"), plural(seconds, "second"))
	}
	return fmt.Sprintf("Processing... %s elapsed. You can navigate away.", plural(minutes, "minute"))
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.FormatInt(n, 10) + " " + unit + "s"
}

// FormattedDuration renders milliseconds as HH:MM:SS. Hours are not wrapped
// at 24; nil, zero and negative values render as 00:00:00.
func FormattedDuration(ms *int64) string {
	if ms == nil || *ms <= 0 {
		return "00:00:00"
	}
	total := *ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// ParseHHMMSS returns the number of seconds in an HH:MM:SS string
func ParseHHMMSS(s string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration %q: expected HH:MM:SS", s)
	}

	var values [3]int64
	for i, part := range parts {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if i > 0 && v > 59 {
			return 0, fmt.Errorf("invalid duration %q: field out of range", s)
		}
		values[i] = v
	}
	return values[0]*3600 + values[1]*60 + values[2], nil
}

// Badge is the label and style class of a status
type Badge struct {
	Label string
	Class string
}

// StatusBadge maps every status to a badge. Unknown statuses land in the
// Failed bucket, never in Completed.
func StatusBadge(status models.MigrationStatus) Badge {
	switch status {
	case models.StatusSuccess:
		return Badge{Label: "Completed", Class: "status-success"}
	case models.StatusInProgress:
		return Badge{Label: "In Progress", Class: "status-progress"}
	case models.StatusPending:
		return Badge{Label: "Pending", Class: "status-pending"}
	case models.StatusCancelled:
		return Badge{Label: "Cancelled", Class: "status-cancelled"}
	default:
		return Badge{Label: "Failed", Class: "status-failed"}
	}
}

// EscapeHTML escapes user-facing text before it is rendered
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}
