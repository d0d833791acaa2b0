package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"repairhub-backend/internal/model"
	"repairhub-backend/internal/store"
)

// ListParts handles GET /api/parts. With ?available=true only parts not
// currently sold on a ticket are returned.
func (h *Handler) ListParts(c *gin.Context) {
	onlyAvailable := c.Query("available") == "true"

	parts, err := h.store.ListParts(c.Request.Context(), onlyAvailable)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve parts"})
		return
	}
	if parts == nil {
		parts = []model.Part{}
	}
	c.JSON(http.StatusOK, parts)
}

type partRequest struct {
	Name  string  `json:"name" binding:"required"`
	Cost  float64 `json:"cost"`
	Price float64 `json:"price"`
}

// CreatePart handles POST /api/parts.
func (h *Handler) CreatePart(c *gin.Context) {
	var req partRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	part := model.Part{Name: req.Name, Cost: req.Cost, Price: req.Price}
	created, err := h.coord.CreatePart(c.Request.Context(), &part)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create part"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

type attachPartRequest struct {
	PartID int64    `json:"part_id" binding:"required"`
	Price  *float64 `json:"price"`
}

// AttachPart handles POST /api/tickets/:id/parts.
func (h *Handler) AttachPart(c *gin.Context) {
	id, ok := ticketIDParam(c)
	if !ok {
		return
	}

	var req attachPartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := h.coord.AttachPart(c.Request.Context(), id, req.PartID, req.Price)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Ticket or part not found"})
		return
	}
	if errors.Is(err, store.ErrPartUnavailable) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Part is already sold on another ticket"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to attach part"})
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// DetachPart handles DELETE /api/tickets/:id/parts/:part_id. Detaching a
// part that is not on the ticket succeeds, so disconnected clients can
// retry safely.
func (h *Handler) DetachPart(c *gin.Context) {
	id, ok := ticketIDParam(c)
	if !ok {
		return
	}
	partID, err := strconv.ParseInt(c.Param("part_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid part ID"})
		return
	}

	ticket, err := h.coord.DetachPart(c.Request.Context(), id, partID)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to detach part"})
		return
	}
	c.JSON(http.StatusOK, ticket)
}
