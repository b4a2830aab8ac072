package bookings

import "time"

// Guesthouse is the catalog view the booking core reads: base nightly price and
// default room inventory.
type Guesthouse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	TotalRooms int       `json:"total_rooms"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Package struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	PriceMultiplierPct int    `json:"price_multiplier_pct"` // 100 = base price
	PerGuest           bool   `json:"per_guest"`
	IsActive           bool   `json:"is_active"`
}

// AvailabilityRecord is the inventory row for one guesthouse on one calendar date.
// 0 <= AvailableRooms <= TotalRooms always holds.
type AvailabilityRecord struct {
	GuestHouseID       int64
	Date               time.Time
	TotalRooms         int
	AvailableRooms     int
	PricePerNightCents int64
	UpdatedAt          time.Time
}

type Booking struct {
	ID              int64
	ExternalID      string // idempotency key, optional
	GuestHouseID    int64
	UserID          string
	AgentID         string
	PackageID       *int64
	CheckIn         time.Time
	CheckOut        time.Time // exclusive
	NumGuests       int
	Rooms           int
	TotalPriceCents int64
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Nights lists the dates this booking holds inventory for.
func (b Booking) Nights() []time.Time { return Nights(b.CheckIn, b.CheckOut) }

type BookingFilter struct {
	GuestHouseID int64
	UserID       string
	AgentID      string
	Status       Status
	Limit        int
}

// InventoryUpdate sets the room count of one date. Used by admin availability edits.
type InventoryUpdate struct {
	Date       time.Time
	TotalRooms int
}
