package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/booking"
)

// CreateBooking handles POST /api/bookings. A signed-in customer's id comes
// from the customer header, not from the body.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req booking.CreateRequest
	if !h.bind(c, &req) {
		return
	}
	req.CustomerID = h.requester(c).CustomerID

	b, err := h.bookings.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// ListBookings handles GET /api/bookings. Operators may list a machine's day
// with machine_id and date; everyone else sees their own bookings.
func (h *Handler) ListBookings(c *gin.Context) {
	ctx := c.Request.Context()
	r := h.requester(c)

	if machineID := c.Query("machine_id"); machineID != "" {
		if !r.Operator {
			h.fail(c, apperr.New(apperr.KindUnauthorized, "operator token required"))
			return
		}
		bookings, err := h.bookings.ByMachineAndDate(ctx, machineID, c.Query("date"))
		if err != nil {
			h.fail(c, err)
			return
		}
		ok(c, bookings)
		return
	}

	phone := r.Phone
	if phone == "" {
		phone = c.Query("phone")
	}
	bookings, err := h.bookings.ByCustomerOrPhone(ctx, r.CustomerID, phone)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, bookings)
}

// GetBooking handles GET /api/bookings/:id.
func (h *Handler) GetBooking(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	r := h.requester(c)
	if !r.Owns(b.CustomerID, b.Phone) {
		h.fail(c, apperr.New(apperr.KindUnauthorized, "booking belongs to another customer"))
		return
	}
	ok(c, b)
}

// PatchBooking handles PATCH /api/bookings/:id.
func (h *Handler) PatchBooking(c *gin.Context) {
	var req booking.UpdateRequest
	if !h.bind(c, &req) {
		return
	}
	b, err := h.bookings.Update(c.Request.Context(), c.Param("id"), req, h.requester(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, b)
}

// ConfirmBooking handles POST /api/bookings/:id/confirm.
func (h *Handler) ConfirmBooking(c *gin.Context) {
	b, err := h.bookings.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, b)
}

// CancelBooking handles POST /api/bookings/:id/cancel.
func (h *Handler) CancelBooking(c *gin.Context) {
	b, err := h.bookings.Cancel(c.Request.Context(), c.Param("id"), h.requester(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, b)
}

// CheckInBooking handles POST /api/bookings/:id/check-in.
func (h *Handler) CheckInBooking(c *gin.Context) {
	sess, err := h.bookings.CheckIn(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}
