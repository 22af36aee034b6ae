package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"simrig-booking-backend/internal/queue"
)

// JoinQueue handles POST /api/queue.
func (h *Handler) JoinQueue(c *gin.Context) {
	var req queue.JoinRequest
	if !h.bind(c, &req) {
		return
	}
	req.CustomerID = h.requester(c).CustomerID

	entry, err := h.queue.Join(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// ListQueue handles GET /api/queue?machine_id=.
func (h *Handler) ListQueue(c *gin.Context) {
	var machineID *string
	if id, present := c.GetQuery("machine_id"); present {
		machineID = &id
	}
	entries, err := h.queue.Waiting(c.Request.Context(), machineID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, entries)
}

// MyQueueStatus handles GET /api/queue/me.
func (h *Handler) MyQueueStatus(c *gin.Context) {
	r := h.requester(c)
	phone := r.Phone
	if phone == "" {
		phone = c.Query("phone")
	}
	status, err := h.queue.MyStatus(c.Request.Context(), r.CustomerID, phone)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, status)
}

// QueueStats handles GET /api/queue/stats.
func (h *Handler) QueueStats(c *gin.Context) {
	st, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, st)
}

// NextQueueNumber handles GET /api/queue/next-number.
func (h *Handler) NextQueueNumber(c *gin.Context) {
	next, err := h.queue.NextQueueNumber(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"next_queue_number": next})
}

// CallQueueEntry handles POST /api/queue/:id/call.
func (h *Handler) CallQueueEntry(c *gin.Context) {
	entry, err := h.queue.Call(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, entry)
}

type seatRequest struct {
	MachineID string `json:"machine_id" binding:"required"`
}

// SeatQueueEntry handles POST /api/queue/:id/seat.
func (h *Handler) SeatQueueEntry(c *gin.Context) {
	var req seatRequest
	if !h.bind(c, &req) {
		return
	}
	entry, sess, err := h.queue.Seat(c.Request.Context(), c.Param("id"), req.MachineID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": entry, "session": sess})
}

// CancelQueueEntry handles POST /api/queue/:id/cancel.
func (h *Handler) CancelQueueEntry(c *gin.Context) {
	entry, err := h.queue.Cancel(c.Request.Context(), c.Param("id"), h.requester(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, entry)
}
