package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"repairhub-backend/internal/model"
)

// Store defines the interface for all ticket store operations. The hub
// coordinator is its only caller for mutations.
type Store interface {
	DB() *gorm.DB

	// NextReceiptNumber durably increments the receipt counter and
	// returns the allocated number. The write and the returned value
	// commit together; on error nothing is consumed.
	NextReceiptNumber(ctx context.Context) (int64, error)

	ListTickets(ctx context.Context, filter TicketFilter) ([]model.Ticket, error)
	GetTicket(ctx context.Context, id int64) (*model.Ticket, error)
	CreateTicket(ctx context.Context, t *model.Ticket) error
	UpdateTicket(ctx context.Context, t *model.Ticket) (*model.Ticket, error)
	DeleteTicket(ctx context.Context, id int64) error

	ListParts(ctx context.Context, onlyAvailable bool) ([]model.Part, error)
	CreatePart(ctx context.Context, p *model.Part) error
	AttachPart(ctx context.Context, ticketID, partID int64, price *float64) (*model.Ticket, error)
	DetachPart(ctx context.Context, ticketID, partID int64) (*model.Ticket, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// NextReceiptNumber increments the single counter row inside a
// transaction. The first allocation creates the row.
func (s *gormStore) NextReceiptNumber(ctx context.Context) (int64, error) {
	var allocated int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter model.ReceiptCounter
		err := tx.First(&counter, 1).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = model.ReceiptCounter{ID: 1, Value: 0}
			if err := tx.Create(&counter).Error; err != nil {
				return fmt.Errorf("failed to create receipt counter: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to read receipt counter: %w", err)
		}

		counter.Value++
		if err := tx.Save(&counter).Error; err != nil {
			return fmt.Errorf("failed to persist receipt counter: %w", err)
		}
		allocated = counter.Value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return allocated, nil
}

func (s *gormStore) ListTickets(ctx context.Context, filter TicketFilter) ([]model.Ticket, error) {
	q := s.db.WithContext(ctx).Preload("Parts").Order("id")
	if filter.Since != nil {
		q = q.Where("updated_at >= ?", *filter.Since)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var tickets []model.Ticket
	if err := q.Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

func (s *gormStore) GetTicket(ctx context.Context, id int64) (*model.Ticket, error) {
	var ticket model.Ticket
	err := s.db.WithContext(ctx).Preload("Parts").First(&ticket, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket %d: %w", id, err)
	}
	return &ticket, nil
}

func (s *gormStore) CreateTicket(ctx context.Context, t *model.Ticket) error {
	t.RecalculateTotals()
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(t).Error; err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// UpdateTicket persists the editable ticket fields and returns the fresh
// record. Receipt number and part associations are never touched here;
// parts change only through AttachPart/DetachPart.
func (s *gormStore) UpdateTicket(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Ticket
		err := tx.Preload("Parts").First(&current, t.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load ticket %d: %w", t.ID, err)
		}

		current.Status = t.Status
		current.ClientName = t.ClientName
		current.ClientPhone = t.ClientPhone
		current.DeviceName = t.DeviceName
		current.DeviceSerial = t.DeviceSerial
		current.FaultDescription = t.FaultDescription
		current.WorkPerformed = t.WorkPerformed
		current.Notes = t.Notes
		current.CostLabor = t.CostLabor
		current.RecalculateTotals()

		if err := tx.Omit(clause.Associations).Save(&current).Error; err != nil {
			return fmt.Errorf("failed to update ticket %d: %w", t.ID, err)
		}
		*t = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTicket removes the ticket and its part associations, restoring
// the associated parts' warehouse availability in the same transaction.
func (s *gormStore) DeleteTicket(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticket model.Ticket
		err := tx.Preload("Parts").First(&ticket, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load ticket %d: %w", id, err)
		}

		for _, assoc := range ticket.Parts {
			if err := restorePart(tx, assoc.PartID); err != nil {
				return err
			}
		}
		if err := tx.Where("ticket_id = ?", id).Delete(&model.PartAssociation{}).Error; err != nil {
			return fmt.Errorf("failed to delete part associations for ticket %d: %w", id, err)
		}
		if err := tx.Delete(&model.Ticket{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete ticket %d: %w", id, err)
		}
		return nil
	})
}

func (s *gormStore) ListParts(ctx context.Context, onlyAvailable bool) ([]model.Part, error) {
	q := s.db.WithContext(ctx).Order("id")
	if onlyAvailable {
		q = q.Where("available = ?", true)
	}
	var parts []model.Part
	if err := q.Find(&parts).Error; err != nil {
		return nil, fmt.Errorf("failed to list parts: %w", err)
	}
	return parts, nil
}

func (s *gormStore) CreatePart(ctx context.Context, p *model.Part) error {
	p.Available = true
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create part: %w", err)
	}
	return nil
}

// AttachPart associates a warehouse part instance with a ticket at the
// given sale price (the part's default price when nil) and marks it
// unavailable. Retrying an attach of a part already on the same ticket is
// a no-op returning the current ticket.
func (s *gormStore) AttachPart(ctx context.Context, ticketID, partID int64, price *float64) (*model.Ticket, error) {
	var result *model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ticket, err := loadTicketForUpdate(tx, ticketID)
		if err != nil {
			return err
		}

		var part model.Part
		err = tx.First(&part, partID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load part %d: %w", partID, err)
		}

		var existing model.PartAssociation
		err = tx.Where("part_id = ?", partID).First(&existing).Error
		if err == nil {
			if existing.TicketID == ticketID {
				// Idempotent retry of the same attach.
				result = ticket
				return nil
			}
			return ErrPartUnavailable
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check part association %d: %w", partID, err)
		}
		if !part.Available {
			return ErrPartUnavailable
		}

		salePrice := part.Price
		if price != nil {
			salePrice = *price
		}
		assoc := model.PartAssociation{
			TicketID: ticketID,
			PartID:   partID,
			Name:     part.Name,
			Price:    salePrice,
			Cost:     part.Cost,
		}
		if err := tx.Create(&assoc).Error; err != nil {
			return fmt.Errorf("failed to attach part %d to ticket %d: %w", partID, ticketID, err)
		}

		part.Available = false
		if err := tx.Save(&part).Error; err != nil {
			return fmt.Errorf("failed to mark part %d unavailable: %w", partID, err)
		}

		ticket.Parts = append(ticket.Parts, assoc)
		ticket.RecalculateTotals()
		if err := tx.Omit(clause.Associations).Save(ticket).Error; err != nil {
			return fmt.Errorf("failed to update ticket %d totals: %w", ticketID, err)
		}
		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DetachPart removes the association and restores the part's warehouse
// availability. Detaching a part that is not on the ticket is a no-op
// returning the current ticket, so disconnected-retry is safe.
func (s *gormStore) DetachPart(ctx context.Context, ticketID, partID int64) (*model.Ticket, error) {
	var result *model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ticket, err := loadTicketForUpdate(tx, ticketID)
		if err != nil {
			return err
		}

		var assoc model.PartAssociation
		err = tx.Where("ticket_id = ? AND part_id = ?", ticketID, partID).First(&assoc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Already detached (or never attached): idempotent no-op.
			result = ticket
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load part association: %w", err)
		}

		if err := tx.Delete(&assoc).Error; err != nil {
			return fmt.Errorf("failed to detach part %d from ticket %d: %w", partID, ticketID, err)
		}
		if err := restorePart(tx, partID); err != nil {
			return err
		}

		remaining := ticket.Parts[:0]
		for _, p := range ticket.Parts {
			if p.PartID != partID {
				remaining = append(remaining, p)
			}
		}
		ticket.Parts = remaining
		ticket.RecalculateTotals()
		if err := tx.Omit(clause.Associations).Save(ticket).Error; err != nil {
			return fmt.Errorf("failed to update ticket %d totals: %w", ticketID, err)
		}
		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func loadTicketForUpdate(tx *gorm.DB, id int64) (*model.Ticket, error) {
	var ticket model.Ticket
	err := tx.Preload("Parts").First(&ticket, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket %d: %w", id, err)
	}
	return &ticket, nil
}

func restorePart(tx *gorm.DB, partID int64) error {
	if err := tx.Model(&model.Part{}).Where("id = ?", partID).
		Update("available", true).Error; err != nil {
		return fmt.Errorf("failed to restore part %d availability: %w", partID, err)
	}
	return nil
}
