package server

import (
	"net/http"

	"github.com/cvforge/cvforge/internal/identity"
	paymentdomain "github.com/cvforge/cvforge/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) SubscriptionStatus(c *gin.Context) {
	ident, ok := identity.FromContext(c)
	if !ok || !ident.IsAccount() {
		AbortWithError(c, paymentdomain.ErrAuthRequired)
		return
	}

	status, err := s.subscriptionSvc.Status(c.Request.Context(), ident.AccountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// SubscriptionHistory lists the account's terms, newest first.
func (s *Server) SubscriptionHistory(c *gin.Context) {
	ident, ok := identity.FromContext(c)
	if !ok || !ident.IsAccount() {
		AbortWithError(c, paymentdomain.ErrAuthRequired)
		return
	}

	records, err := s.subscriptionSvc.History(c.Request.Context(), ident.AccountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": records})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	ident, ok := identity.FromContext(c)
	if !ok || !ident.IsAccount() {
		AbortWithError(c, paymentdomain.ErrAuthRequired)
		return
	}

	if err := s.subscriptionSvc.Cancel(c.Request.Context(), ident.AccountID); err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.subscriptionSvc.Status(c.Request.Context(), ident.AccountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
