package model

import "time"

// Part represents a single warehouse part instance. An instance is sold
// at most once: attaching it to a ticket marks it unavailable, detaching
// restores it.
type Part struct {
	ID        int64   `gorm:"primaryKey" json:"id"`
	Name      string  `gorm:"size:256;not null" json:"name"`
	Cost      float64 `json:"cost"`  // purchase cost
	Price     float64 `json:"price"` // default sale price
	Available bool    `gorm:"not null;index" json:"available"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// PartAssociation links a warehouse part instance to the ticket it was
// sold on, with the price and cost captured at attach time. The unique
// index on PartID keeps an instance on at most one ticket.
type PartAssociation struct {
	ID       int64 `gorm:"primaryKey" json:"id"`
	TicketID int64 `gorm:"index;not null" json:"ticketId"`
	PartID   int64 `gorm:"uniqueIndex;not null" json:"partId"`

	Name  string  `gorm:"size:256;not null" json:"name"`
	Price float64 `json:"price"`
	Cost  float64 `json:"cost"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}
