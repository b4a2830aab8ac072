package bookings

import (
	"context"
	"fmt"
	"time"
)

// Rates resolves nightly prices: a per-date override when one is stored,
// otherwise the guesthouse base price.
type Rates struct {
	store  Store
	ledger *Ledger
}

func NewRates(store Store, ledger *Ledger) *Rates {
	return &Rates{store: store, ledger: ledger}
}

func (r *Rates) EffectiveRate(ctx context.Context, guestHouseID int64, date time.Time) (int64, error) {
	if date.IsZero() {
		return 0, fmt.Errorf("%w: missing date", ErrInvalidInput)
	}
	gh, err := r.store.Guesthouse(ctx, guestHouseID)
	if err != nil {
		return 0, err
	}
	d := Day(date)
	recs, err := r.store.AvailabilityRange(ctx, guestHouseID, d, d.AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}
	if len(recs) > 0 {
		return recs[0].PricePerNightCents, nil
	}
	return gh.PriceCents, nil
}

// BulkSetRate applies the price to each date independently. Dates that fail do
// not stop the rest; all failures come back together as a *BulkError.
func (r *Rates) BulkSetRate(ctx context.Context, guestHouseID int64, dates []time.Time, priceCents int64) error {
	if len(dates) == 0 {
		return fmt.Errorf("%w: no dates", ErrInvalidInput)
	}
	if priceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if _, err := r.store.Guesthouse(ctx, guestHouseID); err != nil {
		return err
	}

	var failures []DateError
	for _, d := range dates {
		if err := r.ledger.SetPriceOverride(ctx, guestHouseID, d, priceCents); err != nil {
			failures = append(failures, DateError{Date: d, Err: err})
		}
	}
	if len(failures) > 0 {
		return &BulkError{Failures: failures}
	}
	return nil
}

// SetBaseRate changes the catalog base price used for dates without an override.
func (r *Rates) SetBaseRate(ctx context.Context, guestHouseID int64, priceCents int64) (Guesthouse, error) {
	if priceCents < 0 {
		return Guesthouse{}, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	var gh Guesthouse
	err := r.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		gh, err = tx.UpdateGuesthousePrice(ctx, guestHouseID, priceCents)
		return err
	})
	return gh, err
}
