package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/redisx"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type BookingsHandler struct {
	Lifecycle *bookings.Lifecycle
	Events    *Emitter
	Redis     *redis.Client // optional fast paths
	Limiter   *RateLimiter  // optional, guards creates
	Logger    *slog.Logger
}

// maxRooms bounds rooms per request; keep in step with the lte tag below.
const maxRooms = 100

type createBookingReq struct {
	GuestHouseID int64  `json:"guest_house_id" validate:"required,gt=0"`
	CheckIn      string `json:"check_in" validate:"required"`
	CheckOut     string `json:"check_out" validate:"required"`
	NumGuests    int    `json:"num_guests" validate:"required,gt=0,lte=100"`
	Rooms        int    `json:"rooms" validate:"gte=0,lte=100"`
	PackageID    *int64 `json:"package_id,omitempty" validate:"omitempty,gt=0"`
}

type agentCreateBookingReq struct {
	createBookingReq
	UserID string `json:"user_id" validate:"omitempty,max=128"` // traveller booked for; defaults to the agent
}

type statusReq struct {
	Status string `json:"status" validate:"required"`
}

type bookingResponse struct {
	ID              int64           `json:"id"`
	GuestHouseID    int64           `json:"guest_house_id"`
	UserID          string          `json:"user_id"`
	AgentID         string          `json:"agent_id,omitempty"`
	PackageID       *int64          `json:"package_id,omitempty"`
	CheckIn         string          `json:"check_in"`
	CheckOut        string          `json:"check_out"`
	Nights          int             `json:"nights"`
	NumGuests       int             `json:"num_guests"`
	Rooms           int             `json:"rooms"`
	TotalPriceCents int64           `json:"total_price_cents"`
	Status          bookings.Status `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type createBookingResp struct {
	Booking    bookingResponse `json:"booking"`
	Idempotent bool            `json:"idempotent"`
}

func toBookingResponse(b bookings.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID,
		GuestHouseID:    b.GuestHouseID,
		UserID:          b.UserID,
		AgentID:         b.AgentID,
		PackageID:       b.PackageID,
		CheckIn:         bookings.FormatDate(b.CheckIn),
		CheckOut:        bookings.FormatDate(b.CheckOut),
		Nights:          len(b.Nights()),
		NumGuests:       b.NumGuests,
		Rooms:           b.Rooms,
		TotalPriceCents: b.TotalPriceCents,
		Status:          b.Status,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func toBookingResponses(bs []bookings.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingResponse(b))
	}
	return out
}

func (h *BookingsHandler) Register(r chi.Router) {
	r.With(Require(CapBook), h.Limiter.Middleware).Post("/bookings", h.createBooking)
	r.With(Require(CapManageBookings)).Get("/bookings", h.listBookings)
	r.With(Require(CapBook)).Get("/bookings/{id}", h.getBooking)
	r.With(Require(CapManageBookings)).Post("/bookings/{id}/confirm", h.confirmBooking)
	r.With(Require(CapManageBookings)).Put("/bookings/{id}/confirm", h.confirmBooking)
	r.With(Require(CapBook)).Post("/bookings/{id}/cancel", h.cancelBooking)
	r.With(Require(CapBook)).Put("/bookings/{id}/cancel", h.cancelBooking)
	r.With(Require(CapManageBookings)).Put("/bookings/{id}/status", h.updateStatus)
	r.With(Require(CapBook)).Get("/me/bookings", h.myBookings)

	r.Route("/agent/bookings", func(r chi.Router) {
		r.Use(Require(CapAgent))
		r.With(h.Limiter.Middleware).Post("/", h.agentCreateBooking)
		r.Get("/", h.agentListBookings)
		r.Put("/{id}/status", h.agentUpdateStatus)
	})
}

func (h *BookingsHandler) createBooking(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req createBookingReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	h.create(w, r, p, p.UserID, "", req)
}

func (h *BookingsHandler) agentCreateBooking(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req agentCreateBookingReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = p.UserID
	}
	h.create(w, r, p, userID, p.UserID, req.createBookingReq)
}

func (h *BookingsHandler) create(w http.ResponseWriter, r *http.Request, p Principal, userID, agentID string, req createBookingReq) {
	checkIn, err := bookings.ParseDate(req.CheckIn)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	checkOut, err := bookings.ParseDate(req.CheckOut)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Idempotency-Key is scoped to the caller so two users can never collide.
	var externalID string
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		if len(key) > 128 {
			writeError(w, r, h.Logger, fmt.Errorf("%w: Idempotency-Key too long", bookings.ErrInvalidInput))
			return
		}
		externalID = p.UserID + ":" + key

		// Fast-path idempotency via Redis (optional, DB tetap jadi kebenaran)
		if id, ok := h.idempotentHit(ctx, externalID); ok {
			if b, err := h.Lifecycle.Get(ctx, id); err == nil {
				writeJSON(w, http.StatusOK, createBookingResp{Booking: toBookingResponse(b), Idempotent: true})
				return
			}
		}
	}

	b, existed, err := h.Lifecycle.Create(ctx, bookings.CreateRequest{
		GuestHouseID: req.GuestHouseID,
		UserID:       userID,
		AgentID:      agentID,
		PackageID:    req.PackageID,
		CheckIn:      checkIn,
		CheckOut:     checkOut,
		NumGuests:    req.NumGuests,
		Rooms:        req.Rooms,
		ExternalID:   externalID,
	})
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	h.rememberIdempotent(ctx, externalID, b.ID)

	code := http.StatusOK
	if !existed {
		code = http.StatusCreated
		h.Events.bookingEvent(ctx, bookings.TopicBookingCreated, bookings.EventBookingCreated, b, actorOf(p))
	}
	writeJSON(w, code, createBookingResp{Booking: toBookingResponse(b), Idempotent: existed})
}

func (h *BookingsHandler) getBooking(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache, 2) fallback DB
	resp, ok := h.cachedBooking(ctx, id)
	if !ok {
		b, err := h.Lifecycle.Get(ctx, id)
		if err != nil {
			writeError(w, r, h.Logger, err)
			return
		}
		h.cacheBooking(ctx, b)
		resp = toBookingResponse(b)
	}
	if !canAccess(p, resp.UserID, resp.AgentID) {
		forbidden(w, "not your booking")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingsHandler) listBookings(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	f.UserID = r.URL.Query().Get("user_id")
	f.AgentID = r.URL.Query().Get("agent_id")
	h.list(w, r, f)
}

func (h *BookingsHandler) myBookings(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	f, err := listFilter(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	f.UserID = p.UserID
	h.list(w, r, f)
}

func (h *BookingsHandler) agentListBookings(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	f, err := listFilter(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	f.AgentID = p.UserID
	h.list(w, r, f)
}

func (h *BookingsHandler) list(w http.ResponseWriter, r *http.Request, f bookings.BookingFilter) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	bs, err := h.Lifecycle.List(ctx, f)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponses(bs))
}

func listFilter(r *http.Request) (bookings.BookingFilter, error) {
	q := r.URL.Query()
	gh, err := queryInt64(r, "guest_house_id")
	if err != nil {
		return bookings.BookingFilter{}, err
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		return bookings.BookingFilter{}, err
	}
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return bookings.BookingFilter{
		GuestHouseID: gh,
		Status:       bookings.Status(q.Get("status")),
		Limit:        int(limit),
	}, nil
}

func (h *BookingsHandler) confirmBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id int64) (bookings.Booking, error) {
		return h.Lifecycle.Confirm(ctx, id)
	}, nil)
}

func (h *BookingsHandler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id int64) (bookings.Booking, error) {
		return h.Lifecycle.Cancel(ctx, id)
	}, func(p Principal, b bookings.Booking) bool {
		return canAccess(p, b.UserID, b.AgentID)
	})
}

func (h *BookingsHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id int64) (bookings.Booking, error) {
		return h.Lifecycle.UpdateStatus(ctx, id, req.Status)
	}, nil)
}

func (h *BookingsHandler) agentUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id int64) (bookings.Booking, error) {
		return h.Lifecycle.UpdateStatus(ctx, id, req.Status)
	}, func(p Principal, b bookings.Booking) bool {
		return b.AgentID != "" && b.AgentID == p.UserID
	})
}

// transition loads the booking, applies the ownership check (nil = none), runs
// the status change and publishes the matching event.
func (h *BookingsHandler) transition(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, id int64) (bookings.Booking, error),
	allowed func(p Principal, b bookings.Booking) bool,
) {
	p, _ := PrincipalFrom(r.Context())
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if allowed != nil {
		b, err := h.Lifecycle.Get(ctx, id)
		if err != nil {
			writeError(w, r, h.Logger, err)
			return
		}
		if !allowed(p, b) {
			forbidden(w, "not your booking")
			return
		}
	}

	out, err := apply(ctx, id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	h.forgetBooking(ctx, id)
	h.cacheBooking(ctx, out)

	switch out.Status {
	case bookings.StatusConfirmed:
		h.Events.bookingEvent(ctx, bookings.TopicBookingConfirmed, bookings.EventBookingConfirmed, out, actorOf(p))
	case bookings.StatusCancelled:
		h.Events.bookingEvent(ctx, bookings.TopicBookingCancelled, bookings.EventBookingCancelled, out, actorOf(p))
	}
	writeJSON(w, http.StatusOK, toBookingResponse(out))
}

// canAccess: the traveller, the agent of record, or anyone who manages bookings.
func canAccess(p Principal, userID, agentID string) bool {
	if p.Can(CapManageBookings) {
		return true
	}
	return p.UserID == userID || (agentID != "" && p.UserID == agentID)
}

func forbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, errorResponse{Error: "Forbidden", Message: msg})
}

func (h *BookingsHandler) idempotentHit(ctx context.Context, externalID string) (int64, bool) {
	if h.Redis == nil {
		return 0, false
	}
	s, err := h.Redis.Get(ctx, redisx.IdemBookingCreate(externalID)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

func (h *BookingsHandler) rememberIdempotent(ctx context.Context, externalID string, id int64) {
	if h.Redis == nil || externalID == "" {
		return
	}
	_ = h.Redis.Set(ctx, redisx.IdemBookingCreate(externalID), id, redisx.TTLIdempotency).Err()
}

func (h *BookingsHandler) cachedBooking(ctx context.Context, id int64) (bookingResponse, bool) {
	if h.Redis == nil {
		return bookingResponse{}, false
	}
	s, err := h.Redis.Get(ctx, redisx.BookingStatus(id)).Bytes()
	if err != nil {
		return bookingResponse{}, false
	}
	var resp bookingResponse
	if err := json.Unmarshal(s, &resp); err != nil {
		return bookingResponse{}, false
	}
	return resp, true
}

// cacheable: only bookings that can no longer change are cached, so a read
// racing a transition can never put an old status back.
func cacheable(b bookings.Booking) bool {
	return b.ID != 0 && !b.Status.Holds()
}

func (h *BookingsHandler) cacheBooking(ctx context.Context, b bookings.Booking) {
	if h.Redis == nil || !cacheable(b) {
		return
	}
	body, err := json.Marshal(toBookingResponse(b))
	if err != nil {
		return
	}
	_ = h.Redis.Set(ctx, redisx.BookingStatus(b.ID), body, redisx.TTLStatusCache).Err()
}

func (h *BookingsHandler) forgetBooking(ctx context.Context, id int64) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, redisx.BookingStatus(id)).Err()
}
