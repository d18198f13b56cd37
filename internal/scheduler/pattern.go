package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"CampaignMailer/internal/errs"
)

// Five-field patterns, an optional leading seconds field, and @daily
// style descriptors are accepted.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validation is the result of ValidatePattern.
type Validation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidatePattern reports whether pattern parses. It has no side
// effects.
func ValidatePattern(pattern string) Validation {
	if _, err := parse(pattern, "UTC"); err != nil {
		return Validation{Valid: false, Error: err.Error()}
	}
	return Validation{Valid: true}
}

// NextExecutions returns the next count firing times of pattern after
// from, evaluated in timezone.
func NextExecutions(pattern, timezone string, from time.Time, count int) ([]time.Time, error) {
	sched, err := parse(pattern, timezone)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, count)
	t := from
	for i := 0; i < count; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// ParseCampaignID accepts a positive decimal identifier.
func ParseCampaignID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty campaign id", errs.ErrInvalidArgument)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: campaign id %q", errs.ErrInvalidArgument, raw)
	}
	return id, nil
}

func parse(pattern, timezone string) (cron.Schedule, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", errs.ErrInvalidPattern)
	}

	spec := pattern
	if !strings.HasPrefix(pattern, "TZ=") && !strings.HasPrefix(pattern, "CRON_TZ=") {
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %w", errs.ErrInvalidPattern, timezone, err)
		}
		spec = "CRON_TZ=" + timezone + " " + pattern
	}

	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", errs.ErrInvalidPattern, pattern, err)
	}
	return sched, nil
}
