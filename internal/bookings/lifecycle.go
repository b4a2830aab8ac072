package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type CreateRequest struct {
	GuestHouseID int64
	UserID       string
	AgentID      string
	PackageID    *int64
	CheckIn      time.Time
	CheckOut     time.Time
	NumGuests    int
	Rooms        int    // defaults to 1
	ExternalID   string // idempotency key, optional
}

// Lifecycle drives bookings through pending -> confirmed/cancelled and keeps
// the ledger in step. Inventory is held from creation, not from confirmation.
type Lifecycle struct {
	store  Store
	ledger *Ledger
	logger *slog.Logger
}

func NewLifecycle(store Store, ledger *Ledger, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{store: store, ledger: ledger, logger: logger.With("component", "lifecycle")}
}

// Create reserves inventory and inserts a pending booking in one transaction.
// existed is true when a booking with the same ExternalID was already there; in
// that case nothing is reserved again.
func (lc *Lifecycle) Create(ctx context.Context, req CreateRequest) (b Booking, existed bool, err error) {
	if err := ValidateRange(req.CheckIn, req.CheckOut); err != nil {
		return Booking{}, false, err
	}
	if req.UserID == "" {
		return Booking{}, false, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if req.NumGuests < 1 {
		return Booking{}, false, fmt.Errorf("%w: at least one guest is required", ErrInvalidInput)
	}
	if req.Rooms == 0 {
		req.Rooms = 1
	}
	if req.Rooms < 0 {
		return Booking{}, false, fmt.Errorf("%w: rooms must be positive", ErrInvalidInput)
	}

	if req.ExternalID != "" {
		prev, err := lc.store.BookingByExternalID(ctx, req.ExternalID)
		switch {
		case err == nil:
			return prev, true, nil
		case !errors.Is(err, ErrNotFound):
			return Booking{}, false, err
		}
	}

	gh, err := lc.store.Guesthouse(ctx, req.GuestHouseID)
	if err != nil {
		return Booking{}, false, err
	}
	if !gh.IsActive {
		return Booking{}, false, fmt.Errorf("%w: guesthouse %d is not taking bookings", ErrNotAvailable, gh.ID)
	}

	var pkg *Package
	if req.PackageID != nil {
		p, err := lc.store.Package(ctx, *req.PackageID)
		if err != nil {
			return Booking{}, false, err
		}
		if !p.IsActive {
			return Booking{}, false, fmt.Errorf("%w: package %d is inactive", ErrNotFound, p.ID)
		}
		pkg = &p
	}

	ok, err := lc.ledger.IsFullyAvailable(ctx, req.GuestHouseID, req.CheckIn, req.CheckOut, req.Rooms)
	if err != nil {
		return Booking{}, false, err
	}
	if !ok {
		return Booking{}, false, fmt.Errorf("%w: guesthouse %d has no %d room(s) free from %s to %s",
			ErrNotAvailable, req.GuestHouseID, req.Rooms, FormatDate(req.CheckIn), FormatDate(req.CheckOut))
	}

	b = Booking{
		ExternalID:   req.ExternalID,
		GuestHouseID: req.GuestHouseID,
		UserID:       req.UserID,
		AgentID:      req.AgentID,
		PackageID:    req.PackageID,
		CheckIn:      Day(req.CheckIn),
		CheckOut:     Day(req.CheckOut),
		NumGuests:    req.NumGuests,
		Rooms:        req.Rooms,
		Status:       StatusPending,
	}
	err = lc.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		recs, err := lc.ledger.reserveTx(ctx, tx, b.GuestHouseID, b.CheckIn, b.CheckOut, b.Rooms)
		if err != nil {
			return err
		}
		b.TotalPriceCents = totalPrice(recs, b.Rooms, b.NumGuests, pkg)
		return tx.InsertBooking(ctx, &b)
	})
	if errors.Is(err, ErrDuplicateExternalID) {
		// lost a race with a retry carrying the same key; our reservation rolled back
		prev, err := lc.store.BookingByExternalID(ctx, req.ExternalID)
		if err != nil {
			return Booking{}, false, err
		}
		return prev, true, nil
	}
	if err != nil {
		return Booking{}, false, err
	}

	lc.logger.InfoContext(ctx, "booking created",
		"booking_id", b.ID,
		"guesthouse_id", b.GuestHouseID,
		"check_in", FormatDate(b.CheckIn),
		"check_out", FormatDate(b.CheckOut),
		"rooms", b.Rooms,
		"total_price_cents", b.TotalPriceCents,
	)
	return b, false, nil
}

// totalPrice sums the nightly prices, multiplies by rooms and applies the
// package multiplier (per guest when the package says so).
func totalPrice(recs []AvailabilityRecord, rooms, guests int, pkg *Package) int64 {
	var nightly int64
	for _, r := range recs {
		nightly += r.PricePerNightCents
	}
	total := nightly * int64(rooms)
	if pkg == nil {
		return total
	}
	total = total * int64(pkg.PriceMultiplierPct) / 100
	if pkg.PerGuest {
		total *= int64(guests)
	}
	return total
}

// Confirm moves a pending booking to confirmed. Inventory is untouched.
func (lc *Lifecycle) Confirm(ctx context.Context, id int64) (Booking, error) {
	var out Booking
	err := lc.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(b.Status, StatusConfirmed) {
			return fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, id, b.Status)
		}
		out, err = tx.UpdateBookingStatus(ctx, id, StatusConfirmed)
		return err
	})
	if err != nil {
		return Booking{}, err
	}
	lc.logger.InfoContext(ctx, "booking confirmed", "booking_id", id)
	return out, nil
}

// Cancel moves a pending or confirmed booking to cancelled and gives its rooms back.
func (lc *Lifecycle) Cancel(ctx context.Context, id int64) (Booking, error) {
	var out Booking
	err := lc.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(b.Status, StatusCancelled) {
			return fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, id, b.Status)
		}
		if err := lc.ledger.releaseTx(ctx, tx, b.GuestHouseID, b.CheckIn, b.CheckOut, b.Rooms); err != nil {
			return err
		}
		out, err = tx.UpdateBookingStatus(ctx, id, StatusCancelled)
		return err
	})
	if err != nil {
		return Booking{}, err
	}
	lc.logger.InfoContext(ctx, "booking cancelled", "booking_id", id, "guesthouse_id", out.GuestHouseID)
	return out, nil
}

// UpdateStatus is the generic entry point for privileged callers.
func (lc *Lifecycle) UpdateStatus(ctx context.Context, id int64, target string) (Booking, error) {
	st, err := ParseStatus(target)
	if err != nil {
		return Booking{}, err
	}
	switch st {
	case StatusConfirmed:
		return lc.Confirm(ctx, id)
	case StatusCancelled:
		return lc.Cancel(ctx, id)
	default:
		return Booking{}, fmt.Errorf("%w: bookings cannot move back to %s", ErrInvalidTransition, st)
	}
}

func (lc *Lifecycle) Get(ctx context.Context, id int64) (Booking, error) {
	return lc.store.Booking(ctx, id)
}

func (lc *Lifecycle) List(ctx context.Context, f BookingFilter) ([]Booking, error) {
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return nil, err
		}
	}
	return lc.store.ListBookings(ctx, f)
}
