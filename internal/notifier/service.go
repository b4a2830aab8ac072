// Package notifier consumes booking events: it keeps the agent action audit
// log and drops stale booking status cache entries.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
	kafkax "github.com/ariefcatur/go-guesthouse-bookings/internal/kafka"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/redisx"
)

const roleAgent = "agent"

type Service struct {
	Redis       *redis.Client // optional: dedup + cache invalidation
	Audit       *slog.Logger
	Logger      *slog.Logger
	ServiceName string
}

var actions = map[string]string{
	bookings.EventBookingCreated:   "created",
	bookings.EventBookingConfirmed: "confirmed",
	bookings.EventBookingCancelled: "cancelled",
}

// HandleBookingEvent: dipasang sebagai handler consumer. Undecodable messages are
// logged and skipped so one bad record cannot stall the partition.
func (s *Service) HandleBookingEvent(ctx context.Context, m kafkago.Message) error {
	// header first: non-booking events are skipped without decoding
	if et := kafkax.Header(m, "x-event-type"); et != "" {
		if _, ok := actions[et]; !ok {
			return nil
		}
	}

	// 1) decode envelope
	var env bookings.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		s.Logger.ErrorContext(ctx, "skip undecodable message", "topic", m.Topic, "offset", m.Offset, "error", err)
		return nil
	}
	action, ok := actions[env.EventType]
	if !ok {
		return nil // ignore
	}

	// 2) dedup via Redis (pakai event_id)
	if s.Redis != nil && env.EventID != "" {
		first, err := redisx.SetOnce(ctx, s.Redis, redisx.Dedup(s.ServiceName, env.EventID), "1", redisx.TTLDedup)
		if err != nil {
			s.Logger.WarnContext(ctx, "dedup unavailable", "event_id", env.EventID, "error", err)
		} else if !first {
			return nil
		}
	}

	// 3) decode payload
	p, err := kafkax.UnwrapPayload[bookings.BookingEventPayload](env.Payload)
	if err != nil {
		s.Logger.ErrorContext(ctx, "skip bad payload", "event_id", env.EventID, "event_type", env.EventType, "error", err)
		return nil
	}

	if s.Redis != nil {
		if err := s.Redis.Del(ctx, redisx.BookingStatus(p.BookingID)).Err(); err != nil {
			// the API deletes the key too; the TTL bounds staleness if both miss
			s.Logger.WarnContext(ctx, "status cache invalidation failed", "booking_id", p.BookingID, "error", err)
		}
	}

	if p.Actor.Role == roleAgent {
		s.Audit.InfoContext(ctx, fmt.Sprintf("agent %s: %s booking %d", p.Actor.UserID, action, p.BookingID),
			"agent_id", p.Actor.UserID,
			"action", action,
			"booking_id", p.BookingID,
			"guest_house_id", p.GuestHouseID,
			"user_id", p.UserID,
			"check_in", p.CheckIn,
			"check_out", p.CheckOut,
			"event_id", env.EventID,
			"occurred_at", env.OccurredAt,
		)
	}
	return nil
}
