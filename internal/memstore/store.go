// Package memstore keeps the booking tables in process memory. Transactions
// are serialized and applied copy-on-write, so a failed callback leaves no trace.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
)

type availKey struct {
	guestHouseID int64
	date         time.Time
}

type state struct {
	guesthouses  map[int64]bookings.Guesthouse
	packages     map[int64]bookings.Package
	availability map[availKey]bookings.AvailabilityRecord
	bookings     map[int64]bookings.Booking
	byExternal   map[string]int64
	nextID       int64
}

func (s *state) clone() *state {
	c := &state{
		guesthouses:  make(map[int64]bookings.Guesthouse, len(s.guesthouses)),
		packages:     make(map[int64]bookings.Package, len(s.packages)),
		availability: make(map[availKey]bookings.AvailabilityRecord, len(s.availability)),
		bookings:     make(map[int64]bookings.Booking, len(s.bookings)),
		byExternal:   make(map[string]int64, len(s.byExternal)),
		nextID:       s.nextID,
	}
	for k, v := range s.guesthouses {
		c.guesthouses[k] = v
	}
	for k, v := range s.packages {
		c.packages[k] = v
	}
	for k, v := range s.availability {
		c.availability[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.byExternal {
		c.byExternal[k] = v
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{
		st: &state{
			guesthouses:  map[int64]bookings.Guesthouse{},
			packages:     map[int64]bookings.Package{},
			availability: map[availKey]bookings.AvailabilityRecord{},
			bookings:     map[int64]bookings.Booking{},
			byExternal:   map[string]int64{},
		},
		now: time.Now,
	}
}

// AddGuesthouse stores gh, assigning an id when it has none.
func (s *Store) AddGuesthouse(gh bookings.Guesthouse) bookings.Guesthouse {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.st.clone()
	if gh.ID == 0 {
		st.nextID++
		gh.ID = st.nextID
	}
	now := s.now().UTC()
	gh.CreatedAt, gh.UpdatedAt = now, now
	st.guesthouses[gh.ID] = gh
	s.st = st
	return gh
}

func (s *Store) AddPackage(p bookings.Package) bookings.Package {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.st.clone()
	if p.ID == 0 {
		st.nextID++
		p.ID = st.nextID
	}
	st.packages[p.ID] = p
	s.st = st
	return p
}

func (s *Store) read() reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reader{st: s.st}
}

func (s *Store) Guesthouse(ctx context.Context, id int64) (bookings.Guesthouse, error) {
	return s.read().Guesthouse(ctx, id)
}

func (s *Store) Package(ctx context.Context, id int64) (bookings.Package, error) {
	return s.read().Package(ctx, id)
}

func (s *Store) AvailabilityRange(ctx context.Context, guestHouseID int64, from, to time.Time) ([]bookings.AvailabilityRecord, error) {
	return s.read().AvailabilityRange(ctx, guestHouseID, from, to)
}

func (s *Store) Booking(ctx context.Context, id int64) (bookings.Booking, error) {
	return s.read().Booking(ctx, id)
}

func (s *Store) BookingByExternalID(ctx context.Context, externalID string) (bookings.Booking, error) {
	return s.read().BookingByExternalID(ctx, externalID)
}

func (s *Store) ListBookings(ctx context.Context, f bookings.BookingFilter) ([]bookings.Booking, error) {
	return s.read().ListBookings(ctx, f)
}

// InTx holds the store lock for the whole callback. Committed state is only
// ever replaced, never mutated, so readers holding the old snapshot stay consistent.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx bookings.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", bookings.ErrStorageUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{reader: reader{st: work}, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

type reader struct{ st *state }

func (r reader) Guesthouse(_ context.Context, id int64) (bookings.Guesthouse, error) {
	gh, ok := r.st.guesthouses[id]
	if !ok {
		return bookings.Guesthouse{}, fmt.Errorf("%w: guesthouse %d", bookings.ErrNotFound, id)
	}
	return gh, nil
}

func (r reader) Package(_ context.Context, id int64) (bookings.Package, error) {
	p, ok := r.st.packages[id]
	if !ok {
		return bookings.Package{}, fmt.Errorf("%w: package %d", bookings.ErrNotFound, id)
	}
	return p, nil
}

func (r reader) AvailabilityRange(_ context.Context, guestHouseID int64, from, to time.Time) ([]bookings.AvailabilityRecord, error) {
	var out []bookings.AvailabilityRecord
	for _, d := range bookings.Nights(from, to) {
		if rec, ok := r.st.availability[availKey{guestHouseID, d}]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r reader) Booking(_ context.Context, id int64) (bookings.Booking, error) {
	b, ok := r.st.bookings[id]
	if !ok {
		return bookings.Booking{}, fmt.Errorf("%w: booking %d", bookings.ErrNotFound, id)
	}
	return b, nil
}

func (r reader) BookingByExternalID(ctx context.Context, externalID string) (bookings.Booking, error) {
	id, ok := r.st.byExternal[externalID]
	if !ok {
		return bookings.Booking{}, fmt.Errorf("%w: booking with external id %q", bookings.ErrNotFound, externalID)
	}
	return r.Booking(ctx, id)
}

func (r reader) ListBookings(_ context.Context, f bookings.BookingFilter) ([]bookings.Booking, error) {
	var out []bookings.Booking
	for _, b := range r.st.bookings {
		if f.GuestHouseID != 0 && b.GuestHouseID != f.GuestHouseID {
			continue
		}
		if f.UserID != "" && b.UserID != f.UserID {
			continue
		}
		if f.AgentID != "" && b.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type tx struct {
	reader
	now func() time.Time
}

func (t *tx) LockAvailability(_ context.Context, gh bookings.Guesthouse, dates []time.Time) ([]bookings.AvailabilityRecord, error) {
	seen := make(map[time.Time]bool, len(dates))
	out := make([]bookings.AvailabilityRecord, 0, len(dates))
	for _, d := range dates {
		d = bookings.Day(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		k := availKey{gh.ID, d}
		rec, ok := t.st.availability[k]
		if !ok {
			rec = bookings.AvailabilityRecord{
				GuestHouseID:       gh.ID,
				Date:               d,
				TotalRooms:         gh.TotalRooms,
				AvailableRooms:     gh.TotalRooms,
				PricePerNightCents: gh.PriceCents,
				UpdatedAt:          t.now().UTC(),
			}
			t.st.availability[k] = rec
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (t *tx) SaveAvailability(_ context.Context, recs []bookings.AvailabilityRecord) error {
	for _, rec := range recs {
		if rec.AvailableRooms < 0 || rec.AvailableRooms > rec.TotalRooms {
			return fmt.Errorf("availability for guesthouse %d on %s out of bounds: %d/%d",
				rec.GuestHouseID, bookings.FormatDate(rec.Date), rec.AvailableRooms, rec.TotalRooms)
		}
		k := availKey{rec.GuestHouseID, bookings.Day(rec.Date)}
		if _, ok := t.st.availability[k]; !ok {
			return fmt.Errorf("%w: availability for guesthouse %d on %s", bookings.ErrNotFound, rec.GuestHouseID, bookings.FormatDate(rec.Date))
		}
		rec.UpdatedAt = t.now().UTC()
		t.st.availability[k] = rec
	}
	return nil
}

func (t *tx) UpsertPrice(ctx context.Context, gh bookings.Guesthouse, date time.Time, priceCents int64) error {
	recs, err := t.LockAvailability(ctx, gh, []time.Time{date})
	if err != nil {
		return err
	}
	recs[0].PricePerNightCents = priceCents
	return t.SaveAvailability(ctx, recs)
}

func (t *tx) InsertBooking(_ context.Context, b *bookings.Booking) error {
	if b.ExternalID != "" {
		if _, dup := t.st.byExternal[b.ExternalID]; dup {
			return bookings.ErrDuplicateExternalID
		}
	}
	t.st.nextID++
	b.ID = t.st.nextID
	now := t.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	t.st.bookings[b.ID] = *b
	if b.ExternalID != "" {
		t.st.byExternal[b.ExternalID] = b.ID
	}
	return nil
}

func (t *tx) LockBooking(ctx context.Context, id int64) (bookings.Booking, error) {
	return t.Booking(ctx, id)
}

func (t *tx) UpdateBookingStatus(ctx context.Context, id int64, status bookings.Status) (bookings.Booking, error) {
	b, err := t.Booking(ctx, id)
	if err != nil {
		return bookings.Booking{}, err
	}
	b.Status = status
	b.UpdatedAt = t.now().UTC()
	t.st.bookings[id] = b
	return b, nil
}

func (t *tx) UpdateGuesthousePrice(ctx context.Context, id int64, priceCents int64) (bookings.Guesthouse, error) {
	gh, err := t.Guesthouse(ctx, id)
	if err != nil {
		return bookings.Guesthouse{}, err
	}
	gh.PriceCents = priceCents
	gh.UpdatedAt = t.now().UTC()
	t.st.guesthouses[id] = gh
	return gh, nil
}
