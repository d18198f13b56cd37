// Package errs holds the error classes shared by the dispatch engine,
// the scheduler and the HTTP layer. Callers wrap them with fmt.Errorf
// and classify with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or invalid job parameters. Nothing has
	// been created when it is returned.
	ErrValidation = errors.New("validation error")

	// ErrTransport marks SMTP connectivity or authentication failures.
	ErrTransport = errors.New("transport error")

	// ErrDelivery marks a single recipient whose retries were exhausted.
	ErrDelivery = errors.New("delivery failure")

	ErrJobNotFound = errors.New("job not found")

	ErrSchedule = errors.New("schedule error")

	ErrInvalidPattern = fmt.Errorf("%w: invalid pattern", ErrSchedule)

	ErrCampaignNotFound = errors.New("campaign not found")
)

// ErrInvalidArgument is both a schedule and a validation failure.
var ErrInvalidArgument = invalidArgument{}

type invalidArgument struct{}

func (invalidArgument) Error() string { return "schedule error: invalid argument" }

func (invalidArgument) Is(target error) bool {
	return target == ErrSchedule || target == ErrValidation
}
