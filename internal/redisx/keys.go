package redisx

import (
	"fmt"
	"time"
)

const (
	// Idempotency create booking: idem:booking:create:{idempotency_key} -> booking_id
	KeyIdemBookingCreate = "idem:booking:create:%s"

	// Cache status booking: booking_status:{booking_id} -> {"id":..,"status":"..","updated_at":".."}
	KeyBookingStatus = "booking_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func IdemBookingCreate(key string) string { return fmt.Sprintf(KeyIdemBookingCreate, key) }
func BookingStatus(id int64) string       { return fmt.Sprintf(KeyBookingStatus, id) }
func Dedup(service, id string) string     { return fmt.Sprintf(KeyDedup, service, id) }
