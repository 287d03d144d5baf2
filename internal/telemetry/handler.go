package telemetry

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/pkg/models"
)

// EventAppender is the subset of internal/eventstore.Store the webhook
// handler needs.
type EventAppender interface {
	Append(ctx context.Context, event *models.TelemetryEvent) error
}

// Handler serves POST /webhook, the ingestion endpoint of spec.md §6.
type Handler struct {
	Events    EventAppender
	Logger    *logging.Logger
	HMACKey   string // optional; empty disables signature verification
	UserIDOf  func(vin string) (string, bool)
}

// webhookResponse is the spec-mandated ingestion response body.
type webhookResponse struct {
	Accepted bool   `json:"accepted"`
	EventID  string `json:"eventId,omitempty"`
}

// Ingest handles POST /webhook: verify signature (if configured), parse the
// payload, resolve the owning user, and append the event.
func (h *Handler) Ingest(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, webhookResponse{Accepted: false})
		return
	}

	if h.HMACKey != "" && !h.verifySignature(c.GetHeader("X-Signature"), body) {
		c.JSON(http.StatusUnauthorized, webhookResponse{Accepted: false})
		return
	}

	event, err := Parse(models.SourceWebhook, body)
	if err != nil {
		h.Logger.Warn("telemetry: webhook parse failed", "error", err)
		c.JSON(http.StatusOK, webhookResponse{Accepted: false})
		return
	}

	if h.UserIDOf != nil {
		if userID, ok := h.UserIDOf(event.VIN); ok {
			event.UserID = userID
		}
	}

	if err := h.Events.Append(c.Request.Context(), event); err != nil {
		h.Logger.Error("telemetry: append event failed", "vin", event.VIN, "error", err)
		c.JSON(http.StatusInternalServerError, webhookResponse{Accepted: false})
		return
	}

	h.Logger.LogEventIngested(event.VIN, string(event.Source), event.ID)
	c.JSON(http.StatusOK, webhookResponse{Accepted: true, EventID: event.ID})
}

// verifySignature checks an HMAC-SHA256 hex digest of body against sig,
// using constant-time comparison to avoid a timing oracle.
func (h *Handler) verifySignature(sig string, body []byte) bool {
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.HMACKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

