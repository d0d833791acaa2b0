package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"repairhub-backend/internal/hub"
)

// lockResponse is the wire shape of a ticket's advisory lock state.
type lockResponse struct {
	Locked     bool       `json:"locked"`
	Device     *string    `json:"device"`
	AcquiredAt *time.Time `json:"acquiredAt"`
}

func toLockResponse(status hub.LockStatus) lockResponse {
	if !status.Locked {
		return lockResponse{}
	}
	device := status.Device
	acquiredAt := status.AcquiredAt
	return lockResponse{Locked: true, Device: &device, AcquiredAt: &acquiredAt}
}

// GetLock handles GET /api/tickets/:id/lock.
func (h *Handler) GetLock(c *gin.Context) {
	id, ok := ticketIDParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toLockResponse(h.coord.GetLock(id)))
}

type lockRequest struct {
	Device string `json:"device" binding:"required"`
}

// AcquireLock handles POST /api/tickets/:id/lock. A lock held by another
// device is reported in the response body, never as an error status.
func (h *Handler) AcquireLock(c *gin.Context) {
	id, ok := ticketIDParam(c)
	if !ok {
		return
	}

	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toLockResponse(h.coord.AcquireLock(id, req.Device)))
}

// ReleaseLock handles DELETE /api/tickets/:id/lock. Releasing a lock the
// device does not hold responds 204 all the same, keeping client
// teardown idempotent.
func (h *Handler) ReleaseLock(c *gin.Context) {
	id, ok := ticketIDParam(c)
	if !ok {
		return
	}

	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.coord.ReleaseLock(id, req.Device)
	c.Status(http.StatusNoContent)
}
