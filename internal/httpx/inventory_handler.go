package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
)

// InventoryHandler serves availability lookups and the admin inventory/rate edits.
type InventoryHandler struct {
	Ledger *bookings.Ledger
	Rates  *bookings.Rates
	Events *Emitter
	Logger *slog.Logger
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/availability", h.checkAvailability)
	r.With(Require(CapManageInventory)).Patch("/availability", h.updateAvailability)

	r.Get("/rates", h.effectiveRate)
	r.With(Require(CapManageInventory)).Post("/rates", h.bulkSetRate)
	r.With(Require(CapManageInventory)).Put("/guesthouses/{id}/rate", h.setBaseRate)
}

type dayResponse struct {
	Date               string `json:"date"`
	TotalRooms         int    `json:"total_rooms"`
	AvailableRooms     int    `json:"available_rooms"`
	PricePerNightCents int64  `json:"price_per_night_cents"`
}

type availabilityResponse struct {
	GuestHouseID    int64         `json:"guest_house_id"`
	CheckIn         string        `json:"check_in"`
	CheckOut        string        `json:"check_out"`
	Rooms           int           `json:"rooms"`
	Available       bool          `json:"available"`
	MinAvailable    int           `json:"min_available"`
	TotalPriceCents int64         `json:"total_price_cents"` // before package adjustments
	Days            []dayResponse `json:"days"`
}

// GET /availability?guest_house_id=&check_in=&check_out=&rooms=
func (h *InventoryHandler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	ghID, err := queryInt64(r, "guest_house_id")
	if err == nil && ghID == 0 {
		err = fmt.Errorf("%w: missing guest_house_id", bookings.ErrInvalidInput)
	}
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	checkIn, err := queryDate(r, "check_in")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	checkOut, err := queryDate(r, "check_out")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	rooms, err := queryInt64(r, "rooms")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if rooms == 0 {
		rooms = 1
	}
	if rooms < 1 || rooms > maxRooms {
		writeError(w, r, h.Logger, fmt.Errorf("%w: rooms must be between 1 and %d", bookings.ErrInvalidInput, maxRooms))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rs, err := h.Ledger.QueryRange(ctx, ghID, checkIn, checkOut)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	resp := availabilityResponse{
		GuestHouseID:    ghID,
		CheckIn:         bookings.FormatDate(rs.CheckIn),
		CheckOut:        bookings.FormatDate(rs.CheckOut),
		Rooms:           int(rooms),
		Available:       rs.MinAvailable() >= int(rooms),
		MinAvailable:    rs.MinAvailable(),
		TotalPriceCents: rs.NightlySumCents() * rooms,
		Days:            make([]dayResponse, 0, len(rs.Days)),
	}
	for _, d := range rs.Days {
		resp.Days = append(resp.Days, dayResponse{
			Date:               bookings.FormatDate(d.Date),
			TotalRooms:         d.TotalRooms,
			AvailableRooms:     d.AvailableRooms,
			PricePerNightCents: d.PricePerNightCents,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type inventoryUpdateReq struct {
	Date       string `json:"date" validate:"required"`
	TotalRooms int    `json:"total_rooms" validate:"gte=0,lte=10000"`
}

type updateAvailabilityReq struct {
	GuestHouseID int64                `json:"guest_house_id" validate:"required,gt=0"`
	Updates      []inventoryUpdateReq `json:"updates" validate:"required,min=1,max=366,dive"`
}

func (h *InventoryHandler) updateAvailability(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req updateAvailabilityReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	updates := make([]bookings.InventoryUpdate, 0, len(req.Updates))
	dates := make([]string, 0, len(req.Updates))
	for _, u := range req.Updates {
		d, err := bookings.ParseDate(u.Date)
		if err != nil {
			writeError(w, r, h.Logger, err)
			return
		}
		updates = append(updates, bookings.InventoryUpdate{Date: d, TotalRooms: u.TotalRooms})
		dates = append(dates, bookings.FormatDate(d))
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Ledger.SetInventory(ctx, req.GuestHouseID, updates); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	h.Events.Emit(ctx, bookings.TopicAvailabilityUpdated, bookings.EventAvailabilityUpdated, req.GuestHouseID,
		strconv.FormatInt(req.GuestHouseID, 10),
		bookings.AvailabilityUpdatedPayload{GuestHouseID: req.GuestHouseID, Dates: dates, Actor: actorOf(p)})
	writeJSON(w, http.StatusOK, map[string]any{"guest_house_id": req.GuestHouseID, "updated": dates})
}

type rateResponse struct {
	GuestHouseID int64  `json:"guest_house_id"`
	Date         string `json:"date"`
	PriceCents   int64  `json:"price_cents"`
}

// GET /rates?guest_house_id=&date=
func (h *InventoryHandler) effectiveRate(w http.ResponseWriter, r *http.Request) {
	ghID, err := queryInt64(r, "guest_house_id")
	if err == nil && ghID == 0 {
		err = fmt.Errorf("%w: missing guest_house_id", bookings.ErrInvalidInput)
	}
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	price, err := h.Rates.EffectiveRate(ctx, ghID, date)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rateResponse{GuestHouseID: ghID, Date: bookings.FormatDate(date), PriceCents: price})
}

type bulkSetRateReq struct {
	GuestHouseID int64    `json:"guest_house_id" validate:"required,gt=0"`
	Dates        []string `json:"dates" validate:"required,min=1,max=366"`
	PriceCents   int64    `json:"price_cents" validate:"gte=0"`
}

type dateFailure struct {
	Date    string `json:"date"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type bulkSetRateResp struct {
	GuestHouseID int64         `json:"guest_house_id"`
	PriceCents   int64         `json:"price_cents"`
	Applied      []string      `json:"applied"`
	Failed       []dateFailure `json:"failed,omitempty"`
}

// POST /rates applies one price to many dates. Unparseable or failing dates are
// reported individually; the rest are still applied (207 when any failed).
func (h *InventoryHandler) bulkSetRate(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req bulkSetRateReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	resp := bulkSetRateResp{GuestHouseID: req.GuestHouseID, PriceCents: req.PriceCents, Applied: []string{}}
	dates := make([]time.Time, 0, len(req.Dates))
	for _, s := range req.Dates {
		d, err := bookings.ParseDate(s)
		if err != nil {
			resp.Failed = append(resp.Failed, dateFailure{Date: s, Error: bookings.Kind(err), Message: err.Error()})
			continue
		}
		dates = append(dates, d)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	failed := map[string]bool{}
	if len(dates) > 0 {
		err := h.Rates.BulkSetRate(ctx, req.GuestHouseID, dates, req.PriceCents)
		var bulk *bookings.BulkError
		switch {
		case err == nil:
		case errors.As(err, &bulk):
			for _, f := range bulk.Failures {
				ds := bookings.FormatDate(f.Date)
				failed[ds] = true
				resp.Failed = append(resp.Failed, dateFailure{Date: ds, Error: bookings.Kind(f.Err), Message: f.Err.Error()})
			}
		default:
			writeError(w, r, h.Logger, err)
			return
		}
	}
	for _, d := range dates {
		if ds := bookings.FormatDate(d); !failed[ds] {
			resp.Applied = append(resp.Applied, ds)
		}
	}

	if len(resp.Applied) > 0 {
		failedDates := make([]string, 0, len(resp.Failed))
		for _, f := range resp.Failed {
			failedDates = append(failedDates, f.Date)
		}
		h.Events.Emit(ctx, bookings.TopicRatesUpdated, bookings.EventRatesUpdated, req.GuestHouseID,
			strconv.FormatInt(req.GuestHouseID, 10),
			bookings.RatesUpdatedPayload{
				GuestHouseID: req.GuestHouseID,
				PriceCents:   req.PriceCents,
				Dates:        resp.Applied,
				Failed:       failedDates,
				Actor:        actorOf(p),
			})
	}

	code := http.StatusOK
	if len(resp.Failed) > 0 {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, resp)
}

type setBaseRateReq struct {
	PriceCents int64 `json:"price_cents" validate:"gte=0"`
}

func (h *InventoryHandler) setBaseRate(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	var req setBaseRateReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	gh, err := h.Rates.SetBaseRate(ctx, id, req.PriceCents)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	h.Events.Emit(ctx, bookings.TopicRatesUpdated, bookings.EventRatesUpdated, gh.ID,
		strconv.FormatInt(gh.ID, 10),
		bookings.RatesUpdatedPayload{GuestHouseID: gh.ID, PriceCents: gh.PriceCents, Actor: actorOf(p)})
	writeJSON(w, http.StatusOK, gh)
}
