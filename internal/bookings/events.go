package bookings

import (
	"encoding/json"
	"time"
)

const (
	EventBookingCreated      = "BookingCreated"
	EventBookingConfirmed    = "BookingConfirmed"
	EventBookingCancelled    = "BookingCancelled"
	EventRatesUpdated        = "RatesUpdated"
	EventAvailabilityUpdated = "AvailabilityUpdated"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // booking id or guesthouse id
	Payload       json.RawMessage `json:"payload"`
}

// Actor is who triggered the change. Agent-originated events feed the audit log.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type BookingEventPayload struct {
	BookingID       int64  `json:"booking_id"`
	GuestHouseID    int64  `json:"guest_house_id"`
	UserID          string `json:"user_id"`
	AgentID         string `json:"agent_id,omitempty"`
	Status          Status `json:"status"`
	CheckIn         string `json:"check_in"`
	CheckOut        string `json:"check_out"`
	Rooms           int    `json:"rooms"`
	TotalPriceCents int64  `json:"total_price_cents"`
	Actor           Actor  `json:"actor"`
}

func NewBookingEventPayload(b Booking, actor Actor) BookingEventPayload {
	return BookingEventPayload{
		BookingID:       b.ID,
		GuestHouseID:    b.GuestHouseID,
		UserID:          b.UserID,
		AgentID:         b.AgentID,
		Status:          b.Status,
		CheckIn:         FormatDate(b.CheckIn),
		CheckOut:        FormatDate(b.CheckOut),
		Rooms:           b.Rooms,
		TotalPriceCents: b.TotalPriceCents,
		Actor:           actor,
	}
}

type RatesUpdatedPayload struct {
	GuestHouseID int64    `json:"guest_house_id"`
	PriceCents   int64    `json:"price_cents"`
	Dates        []string `json:"dates"`
	Failed       []string `json:"failed,omitempty"`
	Actor        Actor    `json:"actor"`
}

type AvailabilityUpdatedPayload struct {
	GuestHouseID int64    `json:"guest_house_id"`
	Dates        []string `json:"dates"`
	Actor        Actor    `json:"actor"`
}
