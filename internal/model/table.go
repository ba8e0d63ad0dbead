package model

import (
	"time"
)

// DiningTable is a physical ordering point. Occupied + LockedAt form the
// occupancy flag: while occupied, at most one order in {pending, paid} owns
// the table. Both fields are only ever mutated inside a transaction that
// holds the table's row lock.
type DiningTable struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TableNumber string     `gorm:"size:10;uniqueIndex;not null" json:"table_number"`
	QRValue     string     `gorm:"size:255" json:"qr_value"`
	Occupied    bool       `gorm:"not null;default:false;index" json:"occupied"`
	LockedAt    *time.Time `json:"locked_at"`
}

func (DiningTable) TableName() string { return "dining_tables" }
