// Package frequency parses the "<magnitude><unit>[|HH:MM]" frequency
// strings used by the job registry's configuration lines.
package frequency

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/mozilla/crontabber/internal/cronerr"
)

// Frequency is a parsed job period plus optional wall-clock anchor.
type Frequency struct {
	// Period is the duration between scheduled runs.
	Period time.Duration
	// Anchor, when non-nil, is the HH:MM time-of-day the job is
	// anchored to. Only legal when Period is a whole number of days.
	Anchor *time.Duration
}

var pattern = regexp.MustCompile(`^(\d+)([mhd])$`)

var unitDurations = map[string]time.Duration{
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// Parse parses a frequency field and an optional HH:MM anchor field.
// anchor may be the empty string, meaning no anchor was configured.
func Parse(freq string, anchor string) (Frequency, error) {
	m := pattern.FindStringSubmatch(freq)
	if m == nil {
		return Frequency{}, cronerr.NewConfigError(
			cronerr.BadFrequency, freq,
			fmt.Errorf("frequency must match <integer><m|h|d>"),
		)
	}

	magnitude, err := strconv.Atoi(m[1])
	if err != nil || magnitude <= 0 {
		return Frequency{}, cronerr.NewConfigError(
			cronerr.BadFrequency, freq,
			fmt.Errorf("magnitude must be a positive integer"),
		)
	}

	period := time.Duration(magnitude) * unitDurations[m[2]]

	if anchor == "" {
		return Frequency{Period: period}, nil
	}

	if period < 24*time.Hour {
		return Frequency{}, cronerr.NewConfigError(
			cronerr.TimeOnSubdailyFrequency, freq,
			fmt.Errorf("anchor %q requires a frequency of at least 1 day", anchor),
		)
	}

	anchorDur, err := parseClock(anchor)
	if err != nil {
		return Frequency{}, cronerr.NewConfigError(cronerr.BadFrequency, anchor, err)
	}

	return Frequency{Period: period, Anchor: &anchorDur}, nil
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

func parseClock(s string) (time.Duration, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("anchor must be HH:MM")
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh > 23 || mm > 59 {
		return 0, fmt.Errorf("anchor %q out of range", s)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

// String renders the frequency back into its configuration form, the
// inverse of Parse, used by --list and --configtest output.
func (f Frequency) String() string {
	switch {
	case f.Period%(24*time.Hour) == 0:
		s := fmt.Sprintf("%dd", int(f.Period/(24*time.Hour)))
		if f.Anchor != nil {
			s += fmt.Sprintf("|%02d:%02d", int(*f.Anchor/time.Hour), int((*f.Anchor%time.Hour)/time.Minute))
		}
		return s
	case f.Period%time.Hour == 0:
		return fmt.Sprintf("%dh", int(f.Period/time.Hour))
	default:
		return fmt.Sprintf("%dm", int(f.Period/time.Minute))
	}
}
