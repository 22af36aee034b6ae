package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/booking"
	"simrig-booking-backend/internal/model"
	"simrig-booking-backend/internal/mw"
	"simrig-booking-backend/internal/queue"
	"simrig-booking-backend/internal/schedule"
	"simrig-booking-backend/internal/session"
	"simrig-booking-backend/internal/store"
)

const (
	operatorHeader = "X-Operator-Token"
	phoneHeader    = "X-Customer-Phone"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store         store.Store
	engine        *schedule.Engine
	bookings      *booking.Service
	queue         *queue.Service
	sessions      *session.Service
	webpush       *webpush.Options
	operatorToken string
	logger        *zap.Logger
}

// Services are the core services the handlers delegate to.
type Services struct {
	Store    store.Store
	Engine   *schedule.Engine
	Bookings *booking.Service
	Queue    *queue.Service
	Sessions *session.Service
}

// NewHandler creates a new API handler.
func NewHandler(svc Services, webpushOptions *webpush.Options, operatorToken string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:         svc.Store,
		engine:        svc.Engine,
		bookings:      svc.Bookings,
		queue:         svc.Queue,
		sessions:      svc.Sessions,
		webpush:       webpushOptions,
		operatorToken: operatorToken,
		logger:        logger,
	}
}

// fail writes err as JSON. Store failures are logged and reported with a
// generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	message := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if kind == apperr.KindStoreUnavailable {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		message = "service temporarily unavailable"
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{"error": message, "code": kind})
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	h.fail(c, apperr.New(apperr.KindInvalidInput, message))
}

func (h *Handler) isOperator(c *gin.Context) bool {
	token := c.GetHeader(operatorHeader)
	return h.operatorToken != "" && token != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(h.operatorToken)) == 1
}

// OperatorOnly rejects requests without the operator token.
func (h *Handler) OperatorOnly(c *gin.Context) {
	if !h.isOperator(c) {
		h.fail(c, apperr.New(apperr.KindUnauthorized, "operator token required"))
		return
	}
	c.Next()
}

// requester identifies the caller from the customer headers.
func (h *Handler) requester(c *gin.Context) model.Requester {
	return model.Requester{
		CustomerID: c.GetHeader(mw.ViewerHeader),
		Phone:      c.GetHeader(phoneHeader),
		Operator:   h.isOperator(c),
	}
}

// referenceTime is the "at" query parameter, or now.
func (h *Handler) referenceTime(c *gin.Context) (*time.Time, error) {
	at := c.Query("at")
	if at == "" {
		now := h.engine.Now()
		return &now, nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return nil, apperr.Newf(apperr.KindInvalidInput, "at %q is not an RFC 3339 timestamp", at)
	}
	return &t, nil
}

// intQuery parses an optional integer query parameter.
func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Newf(apperr.KindInvalidInput, "%s must be an integer", key)
	}
	return v, nil
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.badRequest(c, "invalid request")
		return false
	}
	return true
}

func ok(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}
