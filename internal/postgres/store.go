package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
)

// querier is what both *pgxpool.Pool and pgx.Tx offer.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store implements bookings.Store on Postgres. Row locks (SELECT ... FOR UPDATE)
// serialize writers touching the same guesthouse dates.
type Store struct {
	DB *pgxpool.Pool
	conn
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db, conn: conn{q: db}}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx bookings.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txConn{conn: conn{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr(err)
	}
	return nil
}

const (
	guesthouseCols   = `id, name, price_cents, total_rooms, is_active, created_at, updated_at`
	availabilityCols = `guest_house_id, date, total_rooms, available_rooms, price_per_night_cents, updated_at`
	bookingCols      = `id, external_id, guest_house_id, user_id, agent_id, package_id, check_in, check_out,
		num_guests, rooms, total_price_cents, status, created_at, updated_at`
)

type conn struct{ q querier }

func (c conn) Guesthouse(ctx context.Context, id int64) (bookings.Guesthouse, error) {
	gh, err := scanGuesthouse(c.q.QueryRow(ctx, `SELECT `+guesthouseCols+` FROM guest_houses WHERE id=$1`, id))
	if err != nil {
		return bookings.Guesthouse{}, notFound(err, "guesthouse %d", id)
	}
	return gh, nil
}

func (c conn) Package(ctx context.Context, id int64) (bookings.Package, error) {
	var p bookings.Package
	err := c.q.QueryRow(ctx, `SELECT id, name, price_multiplier_pct, per_guest, is_active FROM packages WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.PriceMultiplierPct, &p.PerGuest, &p.IsActive)
	if err != nil {
		return bookings.Package{}, notFound(err, "package %d", id)
	}
	return p, nil
}

func (c conn) AvailabilityRange(ctx context.Context, guestHouseID int64, from, to time.Time) ([]bookings.AvailabilityRecord, error) {
	rows, err := c.q.Query(ctx, `
		SELECT `+availabilityCols+`
		FROM room_availability
		WHERE guest_house_id=$1 AND date >= $2 AND date < $3
		ORDER BY date`, guestHouseID, from, to)
	if err != nil {
		return nil, wrapErr(err)
	}
	return collectAvailability(rows)
}

func (c conn) Booking(ctx context.Context, id int64) (bookings.Booking, error) {
	b, err := scanBooking(c.q.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=$1`, id))
	if err != nil {
		return bookings.Booking{}, notFound(err, "booking %d", id)
	}
	return b, nil
}

func (c conn) BookingByExternalID(ctx context.Context, externalID string) (bookings.Booking, error) {
	b, err := scanBooking(c.q.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE external_id=$1`, externalID))
	if err != nil {
		return bookings.Booking{}, notFound(err, "booking with external id %q", externalID)
	}
	return b, nil
}

func (c conn) ListBookings(ctx context.Context, f bookings.BookingFilter) ([]bookings.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.GuestHouseID != 0 {
		add("guest_house_id=$%d", f.GuestHouseID)
	}
	if f.UserID != "" {
		add("user_id=$%d", f.UserID)
	}
	if f.AgentID != "" {
		add("agent_id=$%d", f.AgentID)
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}

	sql := `SELECT ` + bookingCols + ` FROM bookings`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := c.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []bookings.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, b)
	}
	return out, wrapErr(rows.Err())
}

type txConn struct{ conn }

func (t *txConn) LockAvailability(ctx context.Context, gh bookings.Guesthouse, dates []time.Time) ([]bookings.AvailabilityRecord, error) {
	days := make([]time.Time, 0, len(dates))
	seen := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		d = bookings.Day(d)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	// same lock order everywhere so overlapping stays never deadlock
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	_, err := t.q.Exec(ctx, `
		INSERT INTO room_availability (guest_house_id, date, total_rooms, available_rooms, price_per_night_cents)
		SELECT $1, d, $3, $3, $4 FROM unnest($2::date[]) AS d
		ON CONFLICT (guest_house_id, date) DO NOTHING`,
		gh.ID, days, gh.TotalRooms, gh.PriceCents)
	if err != nil {
		return nil, wrapErr(err)
	}

	rows, err := t.q.Query(ctx, `
		SELECT `+availabilityCols+`
		FROM room_availability
		WHERE guest_house_id=$1 AND date = ANY($2::date[])
		ORDER BY date
		FOR UPDATE`, gh.ID, days)
	if err != nil {
		return nil, wrapErr(err)
	}
	recs, err := collectAvailability(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) != len(days) {
		return nil, fmt.Errorf("locked %d availability rows for guesthouse %d, expected %d", len(recs), gh.ID, len(days))
	}
	return recs, nil
}

func (t *txConn) SaveAvailability(ctx context.Context, recs []bookings.AvailabilityRecord) error {
	if len(recs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(`
			UPDATE room_availability
			SET total_rooms=$3, available_rooms=$4, price_per_night_cents=$5, updated_at=NOW()
			WHERE guest_house_id=$1 AND date=$2`,
			r.GuestHouseID, bookings.Day(r.Date), r.TotalRooms, r.AvailableRooms, r.PricePerNightCents)
	}
	br := t.q.SendBatch(ctx, batch)
	defer br.Close()

	for _, r := range recs {
		tag, err := br.Exec()
		if err != nil {
			return wrapErr(err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: availability for guesthouse %d on %s",
				bookings.ErrNotFound, r.GuestHouseID, bookings.FormatDate(r.Date))
		}
	}
	return wrapErr(br.Close())
}

func (t *txConn) UpsertPrice(ctx context.Context, gh bookings.Guesthouse, date time.Time, priceCents int64) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO room_availability (guest_house_id, date, total_rooms, available_rooms, price_per_night_cents)
		VALUES ($1, $2, $3, $3, $4)
		ON CONFLICT (guest_house_id, date)
		DO UPDATE SET price_per_night_cents = EXCLUDED.price_per_night_cents, updated_at = NOW()`,
		gh.ID, bookings.Day(date), gh.TotalRooms, priceCents)
	return wrapErr(err)
}

func (t *txConn) InsertBooking(ctx context.Context, b *bookings.Booking) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO bookings (external_id, guest_house_id, user_id, agent_id, package_id,
			check_in, check_out, num_guests, rooms, total_price_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		nullString(b.ExternalID), b.GuestHouseID, b.UserID, nullString(b.AgentID), b.PackageID,
		bookings.Day(b.CheckIn), bookings.Day(b.CheckOut), b.NumGuests, b.Rooms, b.TotalPriceCents, string(b.Status),
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "bookings_external_id_key" {
			return bookings.ErrDuplicateExternalID
		}
		return wrapErr(err)
	}
	return nil
}

func (t *txConn) LockBooking(ctx context.Context, id int64) (bookings.Booking, error) {
	b, err := scanBooking(t.q.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return bookings.Booking{}, notFound(err, "booking %d", id)
	}
	return b, nil
}

func (t *txConn) UpdateBookingStatus(ctx context.Context, id int64, status bookings.Status) (bookings.Booking, error) {
	b, err := scanBooking(t.q.QueryRow(ctx, `
		UPDATE bookings SET status=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+bookingCols, id, string(status)))
	if err != nil {
		return bookings.Booking{}, notFound(err, "booking %d", id)
	}
	return b, nil
}

func (t *txConn) UpdateGuesthousePrice(ctx context.Context, id int64, priceCents int64) (bookings.Guesthouse, error) {
	gh, err := scanGuesthouse(t.q.QueryRow(ctx, `
		UPDATE guest_houses SET price_cents=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+guesthouseCols, id, priceCents))
	if err != nil {
		return bookings.Guesthouse{}, notFound(err, "guesthouse %d", id)
	}
	return gh, nil
}

// CreateGuesthouse and CreatePackage are used for seeding; the catalog itself is
// managed elsewhere.
func (s *Store) CreateGuesthouse(ctx context.Context, gh bookings.Guesthouse) (bookings.Guesthouse, error) {
	out, err := scanGuesthouse(s.DB.QueryRow(ctx, `
		INSERT INTO guest_houses (name, price_cents, total_rooms, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING `+guesthouseCols, gh.Name, gh.PriceCents, gh.TotalRooms, gh.IsActive))
	return out, wrapErr(err)
}

func (s *Store) CreatePackage(ctx context.Context, p bookings.Package) (bookings.Package, error) {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO packages (name, price_multiplier_pct, per_guest, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, p.Name, p.PriceMultiplierPct, p.PerGuest, p.IsActive).Scan(&p.ID)
	return p, wrapErr(err)
}

func (s *Store) ListGuesthouses(ctx context.Context) ([]bookings.Guesthouse, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+guesthouseCols+` FROM guest_houses ORDER BY id`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []bookings.Guesthouse
	for rows.Next() {
		gh, err := scanGuesthouse(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, gh)
	}
	return out, wrapErr(rows.Err())
}

func scanGuesthouse(row pgx.Row) (bookings.Guesthouse, error) {
	var gh bookings.Guesthouse
	err := row.Scan(&gh.ID, &gh.Name, &gh.PriceCents, &gh.TotalRooms, &gh.IsActive, &gh.CreatedAt, &gh.UpdatedAt)
	return gh, err
}

func scanBooking(row pgx.Row) (bookings.Booking, error) {
	var (
		b          bookings.Booking
		externalID *string
		agentID    *string
		status     string
	)
	err := row.Scan(&b.ID, &externalID, &b.GuestHouseID, &b.UserID, &agentID, &b.PackageID,
		&b.CheckIn, &b.CheckOut, &b.NumGuests, &b.Rooms, &b.TotalPriceCents, &status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return bookings.Booking{}, err
	}
	if externalID != nil {
		b.ExternalID = *externalID
	}
	if agentID != nil {
		b.AgentID = *agentID
	}
	b.Status = bookings.Status(status)
	b.CheckIn = bookings.Day(b.CheckIn)
	b.CheckOut = bookings.Day(b.CheckOut)
	return b, nil
}

func collectAvailability(rows pgx.Rows) ([]bookings.AvailabilityRecord, error) {
	defer rows.Close()
	var out []bookings.AvailabilityRecord
	for rows.Next() {
		var r bookings.AvailabilityRecord
		if err := rows.Scan(&r.GuestHouseID, &r.Date, &r.TotalRooms, &r.AvailableRooms, &r.PricePerNightCents, &r.UpdatedAt); err != nil {
			return nil, wrapErr(err)
		}
		r.Date = bookings.Day(r.Date)
		out = append(out, r)
	}
	return out, wrapErr(rows.Err())
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: "+format, append([]any{bookings.ErrNotFound}, args...)...)
	}
	return wrapErr(err)
}

// wrapErr marks failures a caller could retry (connection loss, timeouts,
// lock timeouts, deadlocks) as ErrStorageUnavailable.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57P01", "57P03", "53300":
			return fmt.Errorf("%w: %v", bookings.ErrStorageUnavailable, err)
		}
		return err
	}
	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	if errors.As(err, &connErr) || errors.As(err, &netErr) ||
		pgconn.Timeout(err) || pgconn.SafeToRetry(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", bookings.ErrStorageUnavailable, err)
	}
	return err
}
