package bookings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"

type DayStatus struct {
	Date               time.Time
	TotalRooms         int
	AvailableRooms     int
	PricePerNightCents int64
}

type RangeStatus struct {
	GuestHouseID int64
	CheckIn      time.Time
	CheckOut     time.Time
	Days         []DayStatus
}

// MinAvailable is the smallest room count over the range, i.e. how many
// rooms can be booked for the whole stay.
func (r RangeStatus) MinAvailable() int {
	if len(r.Days) == 0 {
		return 0
	}
	m := r.Days[0].AvailableRooms
	for _, d := range r.Days[1:] {
		if d.AvailableRooms < m {
			m = d.AvailableRooms
		}
	}
	return m
}

func (r RangeStatus) NightlySumCents() int64 {
	var sum int64
	for _, d := range r.Days {
		sum += d.PricePerNightCents
	}
	return sum
}

// Ledger is the only writer of AvailabilityRecord.AvailableRooms.
type Ledger struct {
	store  Store
	logger *slog.Logger
	tracer trace.Tracer

	reserved metric.Int64Counter
	rejected metric.Int64Counter
	clamped  metric.Int64Counter
}

func NewLedger(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter(instrumentationName)
	reserved, _ := meter.Int64Counter("ledger.rooms.reserved",
		metric.WithDescription("room-nights reserved"))
	rejected, _ := meter.Int64Counter("ledger.reserve.rejected",
		metric.WithDescription("reservations refused for lack of inventory"))
	clamped, _ := meter.Int64Counter("ledger.release.clamped",
		metric.WithDescription("releases that would have exceeded total rooms"))
	return &Ledger{
		store:    store,
		logger:   logger.With("component", "ledger"),
		tracer:   otel.Tracer(instrumentationName),
		reserved: reserved,
		rejected: rejected,
		clamped:  clamped,
	}
}

func (l *Ledger) startSpan(ctx context.Context, name string, guestHouseID int64, checkIn, checkOut time.Time) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("guesthouse.id", guestHouseID),
		attribute.String("check_in", FormatDate(checkIn)),
		attribute.String("check_out", FormatDate(checkOut)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// QueryRange reports availability and price for every night in [checkIn, checkOut).
// Dates without a stored record are reported from the guesthouse defaults; no
// record is created.
func (l *Ledger) QueryRange(ctx context.Context, guestHouseID int64, checkIn, checkOut time.Time) (rs RangeStatus, err error) {
	ctx, span := l.startSpan(ctx, "ledger.query_range", guestHouseID, checkIn, checkOut)
	defer func() { endSpan(span, err) }()

	if err := ValidateRange(checkIn, checkOut); err != nil {
		return RangeStatus{}, err
	}
	return queryRange(ctx, l.store, guestHouseID, checkIn, checkOut)
}

func queryRange(ctx context.Context, r Reader, guestHouseID int64, checkIn, checkOut time.Time) (RangeStatus, error) {
	gh, err := r.Guesthouse(ctx, guestHouseID)
	if err != nil {
		return RangeStatus{}, err
	}
	recs, err := r.AvailabilityRange(ctx, guestHouseID, Day(checkIn), Day(checkOut))
	if err != nil {
		return RangeStatus{}, err
	}
	byDate := make(map[time.Time]AvailabilityRecord, len(recs))
	for _, rec := range recs {
		byDate[Day(rec.Date)] = rec
	}

	nights := Nights(checkIn, checkOut)
	rs := RangeStatus{
		GuestHouseID: guestHouseID,
		CheckIn:      Day(checkIn),
		CheckOut:     Day(checkOut),
		Days:         make([]DayStatus, 0, len(nights)),
	}
	for _, d := range nights {
		day := DayStatus{
			Date:               d,
			TotalRooms:         gh.TotalRooms,
			AvailableRooms:     gh.TotalRooms,
			PricePerNightCents: gh.PriceCents,
		}
		if rec, ok := byDate[d]; ok {
			day.TotalRooms = rec.TotalRooms
			day.AvailableRooms = rec.AvailableRooms
			day.PricePerNightCents = rec.PricePerNightCents
		}
		rs.Days = append(rs.Days, day)
	}
	return rs, nil
}

// IsFullyAvailable is advisory: Reserve re-checks inside its own transaction.
func (l *Ledger) IsFullyAvailable(ctx context.Context, guestHouseID int64, checkIn, checkOut time.Time, units int) (bool, error) {
	if units < 1 {
		return false, fmt.Errorf("%w: units must be at least 1", ErrInvalidInput)
	}
	rs, err := l.QueryRange(ctx, guestHouseID, checkIn, checkOut)
	if err != nil {
		return false, err
	}
	return rs.MinAvailable() >= units, nil
}

// Reserve takes units rooms off every night in [checkIn, checkOut), or nothing at all.
func (l *Ledger) Reserve(ctx context.Context, guestHouseID int64, checkIn, checkOut time.Time, units int) error {
	return l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := l.reserveTx(ctx, tx, guestHouseID, checkIn, checkOut, units)
		return err
	})
}

// reserveTx decrements the locked records and returns them as written, so callers
// in the same transaction can price the stay from the exact rows they hold.
func (l *Ledger) reserveTx(ctx context.Context, tx Tx, guestHouseID int64, checkIn, checkOut time.Time, units int) (recs []AvailabilityRecord, err error) {
	ctx, span := l.startSpan(ctx, "ledger.reserve", guestHouseID, checkIn, checkOut)
	span.SetAttributes(attribute.Int("units", units))
	defer func() { endSpan(span, err) }()

	if err := ValidateRange(checkIn, checkOut); err != nil {
		return nil, err
	}
	if units < 1 {
		return nil, fmt.Errorf("%w: units must be at least 1", ErrInvalidInput)
	}
	gh, err := tx.Guesthouse(ctx, guestHouseID)
	if err != nil {
		return nil, err
	}
	recs, err = tx.LockAvailability(ctx, gh, Nights(checkIn, checkOut))
	if err != nil {
		return nil, err
	}

	for _, rec := range recs {
		if rec.AvailableRooms < units {
			l.rejected.Add(ctx, 1, metric.WithAttributes(attribute.Int64("guesthouse.id", guestHouseID)))
			return nil, fmt.Errorf("%w: guesthouse %d has %d room(s) left on %s, %d requested",
				ErrInsufficientAvailability, guestHouseID, rec.AvailableRooms, FormatDate(rec.Date), units)
		}
	}
	for i := range recs {
		recs[i].AvailableRooms -= units
	}
	if err := tx.SaveAvailability(ctx, recs); err != nil {
		return nil, err
	}
	l.reserved.Add(ctx, int64(units*len(recs)), metric.WithAttributes(attribute.Int64("guesthouse.id", guestHouseID)))
	return recs, nil
}

// Release gives units rooms back to every night in [checkIn, checkOut). The
// result is clamped to TotalRooms; a clamp means the books were already wrong
// and is logged.
func (l *Ledger) Release(ctx context.Context, guestHouseID int64, checkIn, checkOut time.Time, units int) error {
	return l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return l.releaseTx(ctx, tx, guestHouseID, checkIn, checkOut, units)
	})
}

func (l *Ledger) releaseTx(ctx context.Context, tx Tx, guestHouseID int64, checkIn, checkOut time.Time, units int) (err error) {
	ctx, span := l.startSpan(ctx, "ledger.release", guestHouseID, checkIn, checkOut)
	span.SetAttributes(attribute.Int("units", units))
	defer func() { endSpan(span, err) }()

	if err := ValidateRange(checkIn, checkOut); err != nil {
		return err
	}
	if units < 1 {
		return fmt.Errorf("%w: units must be at least 1", ErrInvalidInput)
	}
	gh, err := tx.Guesthouse(ctx, guestHouseID)
	if err != nil {
		return err
	}
	recs, err := tx.LockAvailability(ctx, gh, Nights(checkIn, checkOut))
	if err != nil {
		return err
	}
	for i := range recs {
		next := recs[i].AvailableRooms + units
		if next > recs[i].TotalRooms {
			l.logger.WarnContext(ctx, "release exceeds total rooms, clamping",
				"guesthouse_id", guestHouseID,
				"date", FormatDate(recs[i].Date),
				"available_rooms", recs[i].AvailableRooms,
				"units", units,
				"total_rooms", recs[i].TotalRooms,
			)
			l.clamped.Add(ctx, 1, metric.WithAttributes(attribute.Int64("guesthouse.id", guestHouseID)))
			next = recs[i].TotalRooms
		}
		recs[i].AvailableRooms = next
	}
	return tx.SaveAvailability(ctx, recs)
}

// SetPriceOverride sets the nightly price of one date without touching room counts.
func (l *Ledger) SetPriceOverride(ctx context.Context, guestHouseID int64, date time.Time, priceCents int64) error {
	if date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidInput)
	}
	if priceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	return l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		gh, err := tx.Guesthouse(ctx, guestHouseID)
		if err != nil {
			return err
		}
		return tx.UpsertPrice(ctx, gh, Day(date), priceCents)
	})
}

// SetInventory changes the room count of the given dates in one atomic unit.
// Rooms already reserved stay reserved: a date cannot shrink below its
// reserved count.
func (l *Ledger) SetInventory(ctx context.Context, guestHouseID int64, updates []InventoryUpdate) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: no updates", ErrInvalidInput)
	}
	want := make(map[time.Time]int, len(updates))
	dates := make([]time.Time, 0, len(updates))
	for _, u := range updates {
		if u.Date.IsZero() || u.TotalRooms < 0 {
			return fmt.Errorf("%w: bad inventory update for %s", ErrInvalidInput, FormatDate(u.Date))
		}
		d := Day(u.Date)
		if _, dup := want[d]; !dup {
			dates = append(dates, d)
		}
		want[d] = u.TotalRooms
	}

	return l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		gh, err := tx.Guesthouse(ctx, guestHouseID)
		if err != nil {
			return err
		}
		recs, err := tx.LockAvailability(ctx, gh, dates)
		if err != nil {
			return err
		}
		for i := range recs {
			total := want[Day(recs[i].Date)]
			reserved := recs[i].TotalRooms - recs[i].AvailableRooms
			if total < reserved {
				return fmt.Errorf("%w: %s has %d reserved room(s), cannot set total to %d",
					ErrInsufficientAvailability, FormatDate(recs[i].Date), reserved, total)
			}
			recs[i].TotalRooms = total
			recs[i].AvailableRooms = total - reserved
		}
		return tx.SaveAvailability(ctx, recs)
	})
}
