package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"simrig-booking-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint     string `json:"endpoint" binding:"required"`
	P256DH       string `json:"p256dh" binding:"required"`
	Auth         string `json:"auth" binding:"required"`
	QueueEntryID string `json:"queue_entry_id" binding:"required"`
}

// PutSubscription handles the creation or replacement of a subscription.
// The browser is notified when the queue entry is called.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if !h.bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetQueueEntry(ctx, req.QueueEntryID); err != nil {
		h.fail(c, err)
		return
	}

	subscription := model.PushSubscription{
		Endpoint:     req.Endpoint,
		P256DH:       req.P256DH,
		Auth:         req.Auth,
		QueueEntryID: req.QueueEntryID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.SaveSubscription(ctx, &subscription); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns a query value without URL decoding; push endpoints
// are matched exactly as the browser sent them.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription handles the retrieval of a subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, found := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !found || raw == "" {
		h.badRequest(c, "endpoint is required")
		return
	}

	subscription, err := h.store.GetSubscription(c.Request.Context(), raw)
	if err != nil {
		h.fail(c, err)
		return
	}

	ok(c, gin.H{"queue_entry_id": subscription.QueueEntryID})
}

// GetVAPIDPublicKey handles GET /api/vapid_public_key.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are not configured"})
		return
	}
	ok(c, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
