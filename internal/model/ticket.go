package model

import "time"

// TicketStatus enumerates the workshop states of a repair ticket.
type TicketStatus string

const (
	StatusQueued        TicketStatus = "queued"
	StatusInProgress    TicketStatus = "in_progress"
	StatusAwaitingParts TicketStatus = "awaiting_parts"
	StatusReady         TicketStatus = "ready"
	StatusDelivered     TicketStatus = "delivered"
)

// Valid reports whether s is one of the recognized ticket states.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusAwaitingParts, StatusReady, StatusDelivered:
		return true
	}
	return false
}

// Ticket represents a repair record. The hub is the only writer; clients
// hold read-only cached copies.
type Ticket struct {
	ID            int64        `gorm:"primaryKey" json:"id"`
	ReceiptNumber int64        `gorm:"uniqueIndex;not null" json:"receiptNumber"`
	Status        TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`

	ClientName   string `gorm:"size:256" json:"clientName"`
	ClientPhone  string `gorm:"size:64" json:"clientPhone"`
	DeviceName   string `gorm:"size:256" json:"deviceName"`
	DeviceSerial string `gorm:"size:128" json:"deviceSerial"`

	FaultDescription string `gorm:"type:text" json:"faultDescription"`
	WorkPerformed    string `gorm:"type:text" json:"workPerformed"`
	Notes            string `gorm:"type:text" json:"notes"`

	CostLabor  float64 `json:"costLabor"`
	CostParts  float64 `json:"costParts"`
	CostTotal  float64 `json:"costTotal"`
	PartsCost  float64 `json:"partsCost"` // warehouse cost of attached parts
	Profit     float64 `json:"profit"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updatedAt"`

	// Associations
	Parts []PartAssociation `gorm:"foreignKey:TicketID" json:"parts"`
}

// RecalculateTotals refreshes the derived monetary fields from the labor
// cost and the currently attached parts.
func (t *Ticket) RecalculateTotals() {
	var partsPrice, partsCost float64
	for _, p := range t.Parts {
		partsPrice += p.Price
		partsCost += p.Cost
	}
	t.CostParts = partsPrice
	t.PartsCost = partsCost
	t.CostTotal = t.CostLabor + partsPrice
	t.Profit = t.CostLabor + partsPrice - partsCost
}
