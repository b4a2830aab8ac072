package bookings

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRange             = errors.New("invalid date range")
	ErrNotAvailable             = errors.New("not available")
	ErrInsufficientAvailability = errors.New("insufficient availability")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrInvalidStatus            = errors.New("invalid status")
	ErrNotFound                 = errors.New("not found")
	ErrInvalidInput             = errors.New("invalid input")
	ErrStorageUnavailable       = errors.New("storage unavailable")

	// ErrDuplicateExternalID is returned by stores when a booking with the same
	// idempotency key already exists.
	ErrDuplicateExternalID = errors.New("booking external id already exists")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidRange, "InvalidRange"},
	{ErrInsufficientAvailability, "InsufficientAvailability"},
	{ErrNotAvailable, "NotAvailable"},
	{ErrInvalidTransition, "InvalidTransition"},
	{ErrInvalidStatus, "InvalidStatus"},
	{ErrNotFound, "NotFound"},
	{ErrInvalidInput, "InvalidInput"},
	{ErrStorageUnavailable, "StorageUnavailable"},
}

// Kind names the error kind of err, or "Internal" when it carries none.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

type DateError struct {
	Date time.Time
	Err  error
}

func (e DateError) Error() string {
	return fmt.Sprintf("%s: %v", FormatDate(e.Date), e.Err)
}

func (e DateError) Unwrap() error { return e.Err }

// BulkError collects per-date failures of a bulk operation that kept going.
type BulkError struct {
	Failures []DateError
}

func (e *BulkError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%d date(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *BulkError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}
