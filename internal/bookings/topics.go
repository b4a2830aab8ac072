package bookings

import "strconv"

const (
	TopicBookingCreated      = "booking.created"
	TopicBookingConfirmed    = "booking.confirmed"
	TopicBookingCancelled    = "booking.cancelled"
	TopicRatesUpdated        = "inventory.rates.updated"
	TopicAvailabilityUpdated = "inventory.availability.updated"
)

// BookingTopics are the topics the notifier follows.
var BookingTopics = []string{TopicBookingCreated, TopicBookingConfirmed, TopicBookingCancelled}

// Partition key = guesthouse id, so every event touching one inventory stays ordered.
func PartitionKey(guestHouseID int64) []byte {
	return []byte(strconv.FormatInt(guestHouseID, 10))
}
