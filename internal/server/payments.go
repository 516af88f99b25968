package server

import (
	"net/http"
	"strings"

	"github.com/cvforge/cvforge/internal/identity"
	"github.com/cvforge/cvforge/internal/payment/intent"
	"github.com/gin-gonic/gin"
)

type createIntentRequest struct {
	Title        string `json:"title"`
	Template     string `json:"template"`
	Plan         string `json:"plan"`
	Price        int64  `json:"price"`
	Quantity     int    `json:"quantity"`
	Subscription bool   `json:"subscription"`
}

type createIntentResponse struct {
	PaymentID        string `json:"paymentId"`
	PreferenceID     string `json:"preferenceId,omitempty"`
	InitPoint        string `json:"initPoint,omitempty"`
	SandboxInitPoint string `json:"sandboxInitPoint,omitempty"`
	AlreadyPaid      bool   `json:"alreadyPaid,omitempty"`
	Remaining        int    `json:"downloadsRemaining"`
}

func (s *Server) CreateIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ident := s.requireIdentity(c)

	if s.intentLimiter.Enabled() {
		allowed, err := s.intentLimiter.Allow(c.Request.Context(), ident.Key())
		if err == nil && !allowed {
			AbortWithError(c, ErrRateLimited)
			return
		}
	}

	product := req.Template
	subscription := req.Subscription
	if req.Plan != "" {
		product = req.Plan
		subscription = true
	}

	result, err := s.intentSvc.CreateIntent(c.Request.Context(), ident, intent.Request{
		Product:      product,
		Title:        req.Title,
		Amount:       req.Price,
		Quantity:     req.Quantity,
		Subscription: subscription,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, createIntentResponse{
		PaymentID:        result.PaymentRecordID.String(),
		PreferenceID:     result.PreferenceID,
		InitPoint:        result.InitPoint,
		SandboxInitPoint: result.SandboxInitPoint,
		AlreadyPaid:      result.AlreadyPaid,
		Remaining:        result.Remaining,
	})
}

func (s *Server) RefreshPayments(c *gin.Context) {
	ident, ok := identity.FromContext(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"updated": 0})
		return
	}

	updated, err := s.reconcileSvc.RefreshPending(c.Request.Context(), ident)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Refresh doubles as the bookkeeping sweep for lapsed subscription terms.
	if _, err := s.subscriptionSvc.ExpireLapsed(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": len(updated)})
}

// PaymentLookup reconciles one provider payment id on demand and returns the
// resulting local record. The processor stays authoritative; this never
// advances state beyond what reconciliation allows.
func (s *Server) PaymentLookup(c *gin.Context) {
	providerPaymentID := strings.TrimSpace(c.Param("id"))
	if providerPaymentID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	outcome, err := s.reconcileSvc.Reconcile(c.Request.Context(), providerPaymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentInfo(outcome.Record))
}

// ProcessorPublicKey hands the frontend the key it needs to render the
// checkout widget.
func (s *Server) ProcessorPublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": s.cfg.ProcessorPublicKey})
}

// PaymentHistory lists the caller's payment records, newest first.
func (s *Server) PaymentHistory(c *gin.Context) {
	ident, ok := identity.FromContext(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"payments": []paymentInfoView{}})
		return
	}

	records, err := s.paymentRepo.ListByIdentity(c.Request.Context(), s.db, ident.Key())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]paymentInfoView, 0, len(records))
	for i := range records {
		views = append(views, *paymentInfo(&records[i]))
	}
	c.JSON(http.StatusOK, gin.H{"payments": views})
}
