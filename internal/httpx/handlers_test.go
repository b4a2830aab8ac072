package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/memstore"
)

type published struct {
	topic   string
	key     []byte
	value   []byte
	headers []kafkago.Header
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key, value []byte, headers ...kafkago.Header) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.topic)
	}
	return out
}

var (
	traveler  = Principal{UserID: "traveler-1", Role: RoleTraveler}
	traveler2 = Principal{UserID: "traveler-2", Role: RoleTraveler}
	editor    = Principal{UserID: "editor-1", Role: RoleEditor}
	agent     = Principal{UserID: "agent-1", Role: RoleAgent}
	agent2    = Principal{UserID: "agent-2", Role: RoleAgent}
)

type testEnv struct {
	store  *memstore.Store
	router *chi.Mux
	auth   *Authenticator
	pub    *fakePublisher
	gh     bookings.Guesthouse
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	gh := store.AddGuesthouse(bookings.Guesthouse{Name: "Reef View", PriceCents: 10000, TotalRooms: 5, IsActive: true})

	ledger := bookings.NewLedger(store, logger)
	lc := bookings.NewLifecycle(store, ledger, logger)
	rates := bookings.NewRates(store, ledger)

	auth := NewAuthenticator("test-secret")
	pub := &fakePublisher{}
	em := &Emitter{Producer: pub, Service: "booking-api-test", Logger: logger}

	r := NewRouter(auth)
	(&BookingsHandler{Lifecycle: lc, Events: em, Logger: logger}).Register(r)
	(&InventoryHandler{Ledger: ledger, Rates: rates, Events: em, Logger: logger}).Register(r)

	return &testEnv{store: store, router: r, auth: auth, pub: pub, gh: gh}
}

func (e *testEnv) do(t *testing.T, method, path string, p *Principal, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		tok, err := e.auth.Sign(*p, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createBooking(t *testing.T, p Principal, checkIn, checkOut string, headers ...string) bookingResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/bookings", &p, map[string]any{
		"guest_house_id": e.gh.ID,
		"check_in":       checkIn,
		"check_out":      checkOut,
		"num_guests":     2,
	}, headers...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp createBookingResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Booking
}

func (e *testEnv) availability(t *testing.T, checkIn, checkOut string) availabilityResponse {
	t.Helper()
	rec := e.do(t, http.MethodGet,
		fmt.Sprintf("/availability?guest_house_id=%d&check_in=%s&check_out=%s", e.gh.ID, checkIn, checkOut), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp availabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func TestCreateBooking_ReservesAndPublishes(t *testing.T) {
	e := newTestEnv(t)

	b := e.createBooking(t, traveler, "2024-07-10", "2024-07-12")
	assert.Equal(t, bookings.StatusPending, b.Status)
	assert.Equal(t, 2, b.Nights)
	assert.Equal(t, int64(20000), b.TotalPriceCents)
	assert.Equal(t, traveler.UserID, b.UserID)

	av := e.availability(t, "2024-07-10", "2024-07-13")
	require.Len(t, av.Days, 3)
	assert.Equal(t, 4, av.Days[0].AvailableRooms)
	assert.Equal(t, 4, av.Days[1].AvailableRooms)
	assert.Equal(t, 5, av.Days[2].AvailableRooms, "checkout night is not held")

	require.Equal(t, []string{bookings.TopicBookingCreated}, e.pub.topics())
	msg := e.pub.msgs[0]
	assert.Equal(t, bookings.PartitionKey(e.gh.ID), msg.key)
	var env bookings.Envelope
	require.NoError(t, json.Unmarshal(msg.value, &env))
	assert.Equal(t, bookings.EventBookingCreated, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, fmt.Sprint(b.ID), env.CorrelationID)
}

func TestCreateBooking_IdempotencyKeyReservesOnce(t *testing.T) {
	e := newTestEnv(t)

	first := e.createBooking(t, traveler, "2024-07-10", "2024-07-12", "Idempotency-Key", "abc-123")

	rec := e.do(t, http.MethodPost, "/bookings", &traveler, map[string]any{
		"guest_house_id": e.gh.ID,
		"check_in":       "2024-07-10",
		"check_out":      "2024-07-12",
		"num_guests":     2,
	}, "Idempotency-Key", "abc-123")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp createBookingResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Idempotent)
	assert.Equal(t, first.ID, resp.Booking.ID)

	av := e.availability(t, "2024-07-10", "2024-07-12")
	assert.Equal(t, 4, av.MinAvailable)
	assert.Len(t, e.pub.topics(), 1)

	// same key from another user is a different booking
	other := e.createBooking(t, traveler2, "2024-07-10", "2024-07-12", "Idempotency-Key", "abc-123")
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCreateBooking_Auth(t *testing.T) {
	e := newTestEnv(t)
	body := map[string]any{"guest_house_id": e.gh.ID, "check_in": "2024-07-10", "check_out": "2024-07-12", "num_guests": 1}

	rec := e.do(t, http.MethodPost, "/bookings", nil, body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/bookings", nil, body, "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := NewAuthenticator("another-secret")
	tok, err := other.Sign(traveler, time.Hour)
	require.NoError(t, err)
	rec = e.do(t, http.MethodPost, "/bookings", nil, body, "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBooking_ErrorKinds(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/bookings", &traveler, map[string]any{
		"guest_house_id": e.gh.ID, "check_in": "2024-07-12", "check_out": "2024-07-12", "num_guests": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidRange", errorKind(t, rec))

	rec = e.do(t, http.MethodPost, "/bookings", &traveler, map[string]any{
		"guest_house_id": e.gh.ID, "check_in": "10/07/2024", "check_out": "2024-07-12", "num_guests": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidRange", errorKind(t, rec))

	rec = e.do(t, http.MethodPost, "/bookings", &traveler, map[string]any{
		"guest_house_id": e.gh.ID, "check_in": "2024-07-10", "check_out": "2024-07-12",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidInput", errorKind(t, rec))

	rec = e.do(t, http.MethodPost, "/bookings", &traveler, map[string]any{
		"guest_house_id": 9999, "check_in": "2024-07-10", "check_out": "2024-07-12", "num_guests": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", errorKind(t, rec))

	rec = e.do(t, http.MethodPost, "/bookings", &traveler, map[string]any{
		"guest_house_id": e.gh.ID, "check_in": "2024-07-10", "check_out": "2024-07-12", "num_guests": 1, "rooms": 6,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NotAvailable", errorKind(t, rec))
}

func TestConfirmAndCancel(t *testing.T) {
	e := newTestEnv(t)
	b := e.createBooking(t, traveler, "2024-07-10", "2024-07-12")
	confirmPath := fmt.Sprintf("/bookings/%d/confirm", b.ID)
	cancelPath := fmt.Sprintf("/bookings/%d/cancel", b.ID)

	rec := e.do(t, http.MethodPost, confirmPath, &traveler, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, confirmPath, &editor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, e.availability(t, "2024-07-10", "2024-07-12").MinAvailable, "confirm leaves inventory alone")

	rec = e.do(t, http.MethodPost, cancelPath, &traveler2, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, cancelPath, &traveler, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, bookings.StatusCancelled, out.Status)
	assert.Equal(t, 5, e.availability(t, "2024-07-10", "2024-07-12").MinAvailable)

	rec = e.do(t, http.MethodPost, cancelPath, &traveler, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InvalidTransition", errorKind(t, rec))
	assert.Equal(t, 5, e.availability(t, "2024-07-10", "2024-07-12").MinAvailable)

	assert.Equal(t, []string{
		bookings.TopicBookingCreated, bookings.TopicBookingConfirmed, bookings.TopicBookingCancelled,
	}, e.pub.topics())
}

func TestUpdateStatus(t *testing.T) {
	e := newTestEnv(t)
	b := e.createBooking(t, traveler, "2024-07-10", "2024-07-12")
	path := fmt.Sprintf("/bookings/%d/status", b.ID)

	rec := e.do(t, http.MethodPut, path, &editor, map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidStatus", errorKind(t, rec))

	rec = e.do(t, http.MethodPut, path, &editor, map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InvalidTransition", errorKind(t, rec))

	rec = e.do(t, http.MethodPut, path, &editor, map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, e.availability(t, "2024-07-10", "2024-07-12").MinAvailable)

	rec = e.do(t, http.MethodPut, "/bookings/424242/status", &editor, map[string]any{"status": "confirmed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAndListBookings(t *testing.T) {
	e := newTestEnv(t)
	mine := e.createBooking(t, traveler, "2024-07-10", "2024-07-12")
	theirs := e.createBooking(t, traveler2, "2024-07-11", "2024-07-13")

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/bookings/%d", mine.ID), &traveler, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodGet, fmt.Sprintf("/bookings/%d", theirs.ID), &traveler, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = e.do(t, http.MethodGet, fmt.Sprintf("/bookings/%d", theirs.ID), &editor, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodGet, "/bookings/777777", &editor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = e.do(t, http.MethodGet, "/bookings/abc", &editor, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/me/bookings", &traveler, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	rec = e.do(t, http.MethodGet, "/bookings", &traveler, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/bookings?guest_house_id=%d", e.gh.ID), &editor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, theirs.ID, list[0].ID, "newest first")

	rec = e.do(t, http.MethodGet, "/bookings?status=bogus", &editor, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidStatus", errorKind(t, rec))
}

func TestAgentBookings(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/agent/bookings", &agent, map[string]any{
		"guest_house_id": e.gh.ID,
		"check_in":       "2024-08-01",
		"check_out":      "2024-08-03",
		"num_guests":     2,
		"user_id":        "guest-42",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created createBookingResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "guest-42", created.Booking.UserID)
	assert.Equal(t, agent.UserID, created.Booking.AgentID)

	rec = e.do(t, http.MethodPost, "/agent/bookings", &traveler, map[string]any{
		"guest_house_id": e.gh.ID, "check_in": "2024-08-01", "check_out": "2024-08-03", "num_guests": 2,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/agent/bookings", &agent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = e.do(t, http.MethodGet, "/agent/bookings", &agent2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)

	path := fmt.Sprintf("/agent/bookings/%d/status", created.Booking.ID)
	rec = e.do(t, http.MethodPut, path, &agent2, map[string]any{"status": "cancelled"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPut, path, &agent, map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the agent of record may also read it
	rec = e.do(t, http.MethodGet, fmt.Sprintf("/bookings/%d", created.Booking.ID), &agent, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var env bookings.Envelope
	require.NoError(t, json.Unmarshal(e.pub.msgs[len(e.pub.msgs)-1].value, &env))
	payload, err := json.Marshal(env.Payload)
	require.NoError(t, err)
	var p bookings.BookingEventPayload
	require.NoError(t, json.Unmarshal(payload, &p))
	assert.Equal(t, bookings.Actor{UserID: agent.UserID, Role: string(RoleAgent)}, p.Actor)
}

func TestUpdateAvailability(t *testing.T) {
	e := newTestEnv(t)
	e.createBooking(t, traveler, "2024-07-10", "2024-07-12")
	e.createBooking(t, traveler2, "2024-07-10", "2024-07-11")

	body := map[string]any{
		"guest_house_id": e.gh.ID,
		"updates": []map[string]any{
			{"date": "2024-07-10", "total_rooms": 1},
			{"date": "2024-07-11", "total_rooms": 8},
		},
	}
	rec := e.do(t, http.MethodPatch, "/availability", &traveler, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPatch, "/availability", &editor, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InsufficientAvailability", errorKind(t, rec))
	av := e.availability(t, "2024-07-10", "2024-07-12")
	assert.Equal(t, 3, av.Days[0].AvailableRooms)
	assert.Equal(t, 5, av.Days[1].TotalRooms, "failed update changes nothing")

	body["updates"] = []map[string]any{
		{"date": "2024-07-10", "total_rooms": 2},
		{"date": "2024-07-11", "total_rooms": 8},
	}
	rec = e.do(t, http.MethodPatch, "/availability", &editor, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	av = e.availability(t, "2024-07-10", "2024-07-12")
	assert.Equal(t, 2, av.Days[0].TotalRooms)
	assert.Equal(t, 0, av.Days[0].AvailableRooms)
	assert.Equal(t, 8, av.Days[1].TotalRooms)
	assert.Equal(t, 7, av.Days[1].AvailableRooms)
	assert.False(t, av.Available)
}

func TestRates(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/rates", &editor, map[string]any{
		"guest_house_id": e.gh.ID,
		"dates":          []string{"2024-07-10", "not-a-date", "2024-07-11"},
		"price_cents":    15000,
	})
	require.Equal(t, http.StatusMultiStatus, rec.Code, rec.Body.String())
	var resp bulkSetRateResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"2024-07-10", "2024-07-11"}, resp.Applied)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "not-a-date", resp.Failed[0].Date)
	assert.Equal(t, "InvalidRange", resp.Failed[0].Error)

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/rates?guest_house_id=%d&date=2024-07-10", e.gh.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rate rateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rate))
	assert.Equal(t, int64(15000), rate.PriceCents)

	rec = e.do(t, http.MethodPut, fmt.Sprintf("/guesthouses/%d/rate", e.gh.ID), &editor, map[string]any{"price_cents": 12000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/rates?guest_house_id=%d&date=2024-07-12", e.gh.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rate))
	assert.Equal(t, int64(12000), rate.PriceCents, "dates without override follow the base rate")

	// overrides price new bookings
	b := e.createBooking(t, traveler, "2024-07-10", "2024-07-13")
	assert.Equal(t, int64(15000+15000+12000), b.TotalPriceCents)

	rec = e.do(t, http.MethodPost, "/rates", &traveler, map[string]any{
		"guest_house_id": e.gh.ID, "dates": []string{"2024-07-10"}, "price_cents": 1,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/rates", &editor, map[string]any{
		"guest_house_id": e.gh.ID, "dates": []string{"2024-07-10"}, "price_cents": -5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusForKinds(t *testing.T) {
	cases := map[error]int{
		bookings.ErrInvalidRange:             http.StatusBadRequest,
		bookings.ErrInvalidStatus:            http.StatusBadRequest,
		bookings.ErrInvalidInput:             http.StatusBadRequest,
		bookings.ErrNotFound:                 http.StatusNotFound,
		bookings.ErrNotAvailable:             http.StatusConflict,
		bookings.ErrInsufficientAvailability: http.StatusConflict,
		bookings.ErrInvalidTransition:        http.StatusConflict,
		bookings.ErrStorageUnavailable:       http.StatusServiceUnavailable,
		fmt.Errorf("boom"):                   http.StatusInternalServerError,
	}
	for err, code := range cases {
		assert.Equal(t, code, statusFor(bookings.Kind(fmt.Errorf("wrapped: %w", err))), err.Error())
	}
}

func TestConfirmAndCancel_PutRoutes(t *testing.T) {
	e := newTestEnv(t)
	b := e.createBooking(t, traveler, "2024-07-10", "2024-07-12")
	confirmPath := fmt.Sprintf("/bookings/%d/confirm", b.ID)
	cancelPath := fmt.Sprintf("/bookings/%d/cancel", b.ID)

	rec := e.do(t, http.MethodPut, confirmPath, &traveler, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPut, confirmPath, &editor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, bookings.StatusConfirmed, out.Status)

	rec = e.do(t, http.MethodPut, cancelPath, &traveler2, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPut, cancelPath, &traveler, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, bookings.StatusCancelled, out.Status)
	assert.Equal(t, 5, e.availability(t, "2024-07-10", "2024-07-12").MinAvailable)

	// POST and PUT hit the same transition
	rec = e.do(t, http.MethodPost, cancelPath, &traveler, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = e.do(t, http.MethodPut, cancelPath, &traveler, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InvalidTransition", errorKind(t, rec))
}

func TestRangeLengthIsBounded(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet,
		fmt.Sprintf("/availability?guest_house_id=%d&check_in=0002-01-01&check_out=9999-12-31", e.gh.ID), nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidRange", errorKind(t, rec))

	rec = e.do(t, http.MethodPost, "/bookings", &traveler, map[string]any{
		"guest_house_id": e.gh.ID, "check_in": "2024-01-01", "check_out": "2124-01-01", "num_guests": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidRange", errorKind(t, rec))

	rs, err := e.store.AvailabilityRange(context.Background(), e.gh.ID,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, rs, "a rejected stay writes no availability rows")

	// a full leap year is still allowed
	resp := e.availability(t, "2024-01-01", "2025-01-01")
	assert.Len(t, resp.Days, bookings.MaxNights)
}

func TestAvailability_RoomsBounds(t *testing.T) {
	e := newTestEnv(t)
	base := fmt.Sprintf("/availability?guest_house_id=%d&check_in=2024-07-10&check_out=2024-07-12", e.gh.ID)

	for _, rooms := range []string{"-1", "101", "9223372036854775807"} {
		rec := e.do(t, http.MethodGet, base+"&rooms="+rooms, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "rooms=%s", rooms)
		assert.Equal(t, "InvalidInput", errorKind(t, rec), "rooms=%s", rooms)
	}

	rec := e.do(t, http.MethodGet, base+"&rooms=100", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp availabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Available)
	assert.Equal(t, int64(2*10000*100), resp.TotalPriceCents)
}

func TestCacheable_OnlyFinalBookings(t *testing.T) {
	assert.False(t, cacheable(bookings.Booking{ID: 1, Status: bookings.StatusPending}))
	assert.False(t, cacheable(bookings.Booking{ID: 1, Status: bookings.StatusConfirmed}))
	assert.True(t, cacheable(bookings.Booking{ID: 1, Status: bookings.StatusCancelled}))
	assert.False(t, cacheable(bookings.Booking{Status: bookings.StatusCancelled}))
}
