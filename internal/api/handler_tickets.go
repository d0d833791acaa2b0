package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"repairhub-backend/internal/model"
	"repairhub-backend/internal/store"
)

// NextReceiptNumber handles POST /api/tickets/next-receipt-number.
func (h *Handler) NextReceiptNumber(c *gin.Context) {
	number, err := h.coord.AllocateReceiptNumber(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to allocate receipt number"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"number": number})
}

// ListTickets handles GET /api/tickets with optional since and status
// query parameters.
func (h *Handler) ListTickets(c *gin.Context) {
	var filter store.TicketFilter

	if sinceParam := c.Query("since"); sinceParam != "" {
		since, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'since' timestamp format. Use RFC3339."})
			return
		}
		filter.Since = &since
	}
	if status := c.Query("status"); status != "" {
		if !model.TicketStatus(status).Valid() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unknown ticket status"})
			return
		}
		filter.Status = status
	}

	tickets, err := h.store.ListTickets(c.Request.Context(), filter)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tickets"})
		return
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	c.JSON(http.StatusOK, tickets)
}

// GetTicket handles GET /api/tickets/:id.
func (h *Handler) GetTicket(c *gin.Context) {
	id, ok := ticketIDParam(c)
	if !ok {
		return
	}

	ticket, err := h.store.GetTicket(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve ticket"})
		return
	}
	c.JSON(http.StatusOK, ticket)
}

type ticketRequest struct {
	Status           model.TicketStatus `json:"status"`
	ClientName       string             `json:"clientName"`
	ClientPhone      string             `json:"clientPhone"`
	DeviceName       string             `json:"deviceName"`
	DeviceSerial     string             `json:"deviceSerial"`
	FaultDescription string             `json:"faultDescription"`
	WorkPerformed    string             `json:"workPerformed"`
	Notes            string             `json:"notes"`
	CostLabor        float64            `json:"costLabor"`
	ReceiptNumber    int64              `json:"receiptNumber"`
}

func (r *ticketRequest) ticket() model.Ticket {
	return model.Ticket{
		Status:           r.Status,
		ClientName:       r.ClientName,
		ClientPhone:      r.ClientPhone,
		DeviceName:       r.DeviceName,
		DeviceSerial:     r.DeviceSerial,
		FaultDescription: r.FaultDescription,
		WorkPerformed:    r.WorkPerformed,
		Notes:            r.Notes,
		CostLabor:        r.CostLabor,
		ReceiptNumber:    r.ReceiptNumber,
	}
}

// CreateTicket handles POST /api/tickets.
func (h *Handler) CreateTicket(c *gin.Context) {
	var req ticketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket := req.ticket()
	created, err := h.coord.CreateTicket(c.Request.Context(), &ticket)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateTicket handles PUT /api/tickets/:id.
func (h *Handler) UpdateTicket(c *gin.Context) {
	id, ok := ticketIDParam(c)
	if !ok {
		return
	}

	var req ticketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket := req.ticket()
	ticket.ID = id
	updated, err := h.coord.UpdateTicket(c.Request.Context(), &ticket)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteTicket handles DELETE /api/tickets/:id.
func (h *Handler) DeleteTicket(c *gin.Context) {
	id, ok := ticketIDParam(c)
	if !ok {
		return
	}

	err := h.coord.DeleteTicket(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete ticket"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetHealth handles GET /api/health.
func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ticketIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid ticket ID"})
		return 0, false
	}
	return id, true
}
