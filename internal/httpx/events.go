package httpx

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
	kafkax "github.com/ariefcatur/go-guesthouse-bookings/internal/kafka"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafkago.Header) error
}

// Emitter wraps domain payloads in the v1 envelope. A nil Emitter or one without
// a Producer drops events; the database stays the source of truth either way.
type Emitter struct {
	Producer Publisher
	Service  string
	Logger   *slog.Logger
}

func (e *Emitter) Emit(ctx context.Context, topic, eventType string, guestHouseID int64, correlationID string, payload any) {
	if e == nil || e.Producer == nil {
		return
	}
	ev := bookings.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	err := e.Producer.Publish(ctx, topic, bookings.PartitionKey(guestHouseID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if err != nil && e.Logger != nil {
		e.Logger.WarnContext(ctx, "event not published", "event_type", eventType, "correlation_id", correlationID, "error", err)
	}
}

func (e *Emitter) bookingEvent(ctx context.Context, topic, eventType string, b bookings.Booking, actor bookings.Actor) {
	e.Emit(ctx, topic, eventType, b.GuestHouseID, strconv.FormatInt(b.ID, 10), bookings.NewBookingEventPayload(b, actor))
}

func actorOf(p Principal) bookings.Actor {
	return bookings.Actor{UserID: p.UserID, Role: string(p.Role)}
}
