package domain

import "time"

type UnitStatus string

const (
	UnitStatusAvailable UnitStatus = "available"
	UnitStatusReserved  UnitStatus = "reserved"
	UnitStatusSold      UnitStatus = "sold"
)

// Unit is a single sellable land slot, keyed into a state/area region.
// Status sold implies OwnerID is set and the reservation lock is cleared.
type Unit struct {
	ID            string
	StateCode     string
	AreaCode      string
	Status        UnitStatus
	OrderID       string // reservation holder, empty unless reserved or sold
	LockExpiresAt *time.Time
	OwnerID       string
	OwnedAt       *time.Time
	CreatedAt     time.Time
}
