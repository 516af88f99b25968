package server

import (
	"encoding/json"
	"net/http"
	"strings"

	obslogger "github.com/cvforge/cvforge/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// webhookBody covers the notification shapes the processor sends: the
// action/type envelope with a nested data.id, and legacy notifications that
// only carry query parameters.
type webhookBody struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// Webhook ingests a processor notification. Any notification with an
// extractable payment id is acknowledged with 200 regardless of what
// reconciliation decides, so the processor stops re-delivering; the state
// machine guard makes replays harmless.
func (s *Server) Webhook(c *gin.Context) {
	paymentID := extractPaymentID(c)
	if paymentID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "missing payment id"})
		return
	}

	log := obslogger.FromContext(c.Request.Context())
	outcome, err := s.reconcileSvc.Reconcile(c.Request.Context(), paymentID)
	if err != nil {
		log.Warn("webhook reconciliation failed",
			zap.String("provider_payment_id", paymentID),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"status":   outcome.Record.Status,
	})
}

func extractPaymentID(c *gin.Context) string {
	// Query form: ?topic=payment&id=123
	if topic := c.Query("topic"); topic != "" && topic != "payment" {
		return ""
	}
	if id := strings.TrimSpace(c.Query("id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.Query("data.id")); id != "" {
		return id
	}

	if c.Request.Method != http.MethodPost || c.Request.Body == nil {
		return ""
	}
	var body webhookBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return ""
	}
	// Envelope forms: {"action":"payment.updated","data":{"id":...}} and
	// {"type":"payment","data":{"id":...}}.
	if body.Action != "" && !strings.HasPrefix(body.Action, "payment.") {
		return ""
	}
	if body.Action == "" && body.Type != "" && body.Type != "payment" {
		return ""
	}
	return strings.TrimSpace(body.Data.ID.String())
}
