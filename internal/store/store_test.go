package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"repairhub-backend/internal/model"
)

func newTestStore(t *testing.T) (Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(
		&model.Ticket{},
		&model.Part{},
		&model.PartAssociation{},
		&model.ReceiptCounter{},
		&model.PushSubscription{},
	))
	return NewGormStore(gormDB), gormDB
}

func createTicket(t *testing.T, s Store, receipt int64, labor float64) *model.Ticket {
	t.Helper()
	ticket := &model.Ticket{
		ReceiptNumber: receipt,
		Status:        model.StatusQueued,
		ClientName:    "client",
		CostLabor:     labor,
	}
	require.NoError(t, s.CreateTicket(context.Background(), ticket))
	return ticket
}

func createPart(t *testing.T, s Store, name string, cost, price float64) *model.Part {
	t.Helper()
	part := &model.Part{Name: name, Cost: cost, Price: price}
	require.NoError(t, s.CreatePart(context.Background(), part))
	return part
}

func TestGormStore_NextReceiptNumber(t *testing.T) {
	s, gormDB := newTestStore(t)
	ctx := context.Background()

	first, err := s.NextReceiptNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := s.NextReceiptNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second)

	// The high-water mark is durable: a fresh store over the same
	// database continues where the old one stopped.
	reloaded := NewGormStore(gormDB)
	third, err := reloaded.NextReceiptNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), third)

	var counter model.ReceiptCounter
	require.NoError(t, gormDB.First(&counter, 1).Error)
	assert.Equal(t, int64(3), counter.Value)
}

func TestGormStore_TicketCRUD(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ticket := createTicket(t, s, 501, 100)
	require.NotZero(t, ticket.ID)

	loaded, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(501), loaded.ReceiptNumber)
	assert.Equal(t, float64(100), loaded.CostTotal)

	loaded.WorkPerformed = "replaced thermal paste"
	loaded.CostLabor = 150
	updated, err := s.UpdateTicket(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, "replaced thermal paste", updated.WorkPerformed)
	assert.Equal(t, float64(150), updated.CostTotal)
	assert.Equal(t, int64(501), updated.ReceiptNumber, "update must not touch the receipt number")

	require.NoError(t, s.DeleteTicket(ctx, ticket.ID))
	_, err = s.GetTicket(ctx, ticket.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteTicket(ctx, ticket.ID), ErrNotFound)
}

func TestGormStore_ListTicketsSinceCursor(t *testing.T) {
	s, gormDB := newTestStore(t)
	ctx := context.Background()

	old := createTicket(t, s, 1, 50)
	createTicket(t, s, 2, 60)

	// Age the first ticket below the cursor.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, gormDB.Model(&model.Ticket{}).Where("id = ?", old.ID).
		Update("updated_at", past).Error)

	cursor := time.Now().Add(-time.Minute)
	tickets, err := s.ListTickets(ctx, TicketFilter{Since: &cursor})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, int64(2), tickets[0].ReceiptNumber)

	all, err := s.ListTickets(ctx, TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGormStore_AttachDetachPart(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ticket := createTicket(t, s, 1, 100)
	part := createPart(t, s, "battery", 120, 200)
	priorTotal := ticket.CostTotal

	attached, err := s.AttachPart(ctx, ticket.ID, part.ID, nil)
	require.NoError(t, err)
	require.Len(t, attached.Parts, 1)
	assert.Equal(t, float64(200), attached.Parts[0].Price)
	assert.Equal(t, float64(300), attached.CostTotal)
	assert.Equal(t, float64(180), attached.Profit)

	available, err := s.ListParts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, available, "an attached part must leave the warehouse")

	// Retrying the same attach is a no-op, not a double sell.
	again, err := s.AttachPart(ctx, ticket.ID, part.ID, nil)
	require.NoError(t, err)
	assert.Len(t, again.Parts, 1)
	assert.Equal(t, float64(300), again.CostTotal)

	// A second ticket cannot buy the same part instance.
	other := createTicket(t, s, 2, 0)
	_, err = s.AttachPart(ctx, other.ID, part.ID, nil)
	assert.ErrorIs(t, err, ErrPartUnavailable)

	detached, err := s.DetachPart(ctx, ticket.ID, part.ID)
	require.NoError(t, err)
	assert.Empty(t, detached.Parts)
	assert.Equal(t, priorTotal, detached.CostTotal, "detach must restore the prior parts total")

	available, err = s.ListParts(ctx, true)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, part.ID, available[0].ID, "detach must restore warehouse availability")

	// Detaching an already-detached part is a retry-safe no-op.
	_, err = s.DetachPart(ctx, ticket.ID, part.ID)
	assert.NoError(t, err)
}

func TestGormStore_AttachPartOverridePrice(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ticket := createTicket(t, s, 1, 0)
	part := createPart(t, s, "ssd", 500, 900)

	salePrice := 850.0
	attached, err := s.AttachPart(ctx, ticket.ID, part.ID, &salePrice)
	require.NoError(t, err)
	require.Len(t, attached.Parts, 1)
	assert.Equal(t, salePrice, attached.Parts[0].Price)
	assert.Equal(t, salePrice, attached.CostParts)
	assert.Equal(t, salePrice-500, attached.Profit)
}

func TestGormStore_AttachPartUnknownIDs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ticket := createTicket(t, s, 1, 0)

	_, err := s.AttachPart(ctx, ticket.ID, 999, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	part := createPart(t, s, "fan", 30, 60)
	_, err = s.AttachPart(ctx, 999, part.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
