package bookings

import (
	"context"
	"time"
)

// Reader is the read side of the booking store. Missing rows are reported as
// ErrNotFound; connectivity failures as ErrStorageUnavailable.
type Reader interface {
	Guesthouse(ctx context.Context, id int64) (Guesthouse, error)
	Package(ctx context.Context, id int64) (Package, error)
	// AvailabilityRange returns the stored records in [from, to), ordered by date.
	// Dates without a record are simply absent.
	AvailabilityRange(ctx context.Context, guestHouseID int64, from, to time.Time) ([]AvailabilityRecord, error)
	Booking(ctx context.Context, id int64) (Booking, error)
	BookingByExternalID(ctx context.Context, externalID string) (Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error)
}

// Tx is one atomic unit against the store. Nothing written through it is
// visible to others until the surrounding InTx callback returns nil.
type Tx interface {
	Reader

	// LockAvailability makes sure a record exists for each date (seeded from the
	// guesthouse defaults) and returns all of them locked for update, ordered by date.
	LockAvailability(ctx context.Context, gh Guesthouse, dates []time.Time) ([]AvailabilityRecord, error)
	// SaveAvailability writes back TotalRooms, AvailableRooms and PricePerNightCents
	// of previously locked records.
	SaveAvailability(ctx context.Context, recs []AvailabilityRecord) error
	// UpsertPrice sets the nightly price of one date, creating the record from
	// guesthouse defaults if needed. Room counts are left alone.
	UpsertPrice(ctx context.Context, gh Guesthouse, date time.Time, priceCents int64) error

	InsertBooking(ctx context.Context, b *Booking) error
	LockBooking(ctx context.Context, id int64) (Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status Status) (Booking, error)

	UpdateGuesthousePrice(ctx context.Context, id int64, priceCents int64) (Guesthouse, error)
}

type Store interface {
	Reader
	// InTx runs fn in a single transaction, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
