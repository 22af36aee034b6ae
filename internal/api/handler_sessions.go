package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/localtime"
	"simrig-booking-backend/internal/model"
	"simrig-booking-backend/internal/session"
)

// StartSession handles POST /api/sessions for walk-ins without a ticket.
func (h *Handler) StartSession(c *gin.Context) {
	var req session.StartRequest
	if !h.bind(c, &req) {
		return
	}
	sess, err := h.sessions.Start(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// ActiveSessions handles GET /api/sessions/active.
func (h *Handler) ActiveSessions(c *gin.Context) {
	sessions, err := h.sessions.ActiveAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, sessions)
}

// SessionStats handles GET /api/sessions/stats?from=&to=. The range defaults
// to today's calendar day in the venue's zone.
func (h *Handler) SessionStats(c *gin.Context) {
	zone := h.engine.Zone()
	from, to, err := localtime.DayBounds(localtime.BusinessDate(h.engine.Now(), zone), zone)
	if err != nil {
		h.fail(c, err)
		return
	}
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.fail(c, apperr.Newf(apperr.KindInvalidInput, "%s %q is not an RFC 3339 timestamp", key, raw))
			return
		}
		*dst = t
	}

	st, err := h.sessions.Stats(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, st)
}

type endSessionRequest struct {
	TotalAmount *decimal.Decimal `json:"total_amount"`
}

// EndSession handles POST /api/sessions/:id/end. The body is optional.
func (h *Handler) EndSession(c *gin.Context) {
	var req endSessionRequest
	if c.Request.ContentLength != 0 {
		if !h.bind(c, &req) {
			return
		}
	}
	sess, err := h.sessions.End(c.Request.Context(), c.Param("id"), req.TotalAmount)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, sess)
}

type paymentRequest struct {
	PaymentStatus model.PaymentStatus `json:"payment_status" binding:"required"`
}

// UpdatePayment handles PATCH /api/sessions/:id/payment.
func (h *Handler) UpdatePayment(c *gin.Context) {
	var req paymentRequest
	if !h.bind(c, &req) {
		return
	}
	sess, err := h.sessions.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), req.PaymentStatus)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, sess)
}

type amountRequest struct {
	TotalAmount *decimal.Decimal `json:"total_amount" binding:"required"`
}

// UpdateAmount handles PATCH /api/sessions/:id/amount.
func (h *Handler) UpdateAmount(c *gin.Context) {
	var req amountRequest
	if !h.bind(c, &req) {
		return
	}
	sess, err := h.sessions.UpdateTotalAmount(c.Request.Context(), c.Param("id"), *req.TotalAmount)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, sess)
}

// StationSession handles GET /api/stations/:id/session. An idle station
// returns null.
func (h *Handler) StationSession(c *gin.Context) {
	sess, err := h.sessions.Active(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, sess)
}

// StationSessions handles GET /api/stations/:id/sessions?limit=.
func (h *Handler) StationSessions(c *gin.Context) {
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		h.fail(c, err)
		return
	}
	sessions, err := h.sessions.ByMachine(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, sessions)
}
