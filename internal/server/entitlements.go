package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/cvforge/cvforge/internal/entitlement"
	"github.com/cvforge/cvforge/internal/identity"
	paymentdomain "github.com/cvforge/cvforge/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

type paymentInfoView struct {
	PaymentID     string    `json:"paymentId"`
	Product       string    `json:"product"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	PayerEmail    string    `json:"payerEmail,omitempty"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type paymentStatusResponse struct {
	HasPaid            bool             `json:"hasPaid"`
	DownloadsRemaining int              `json:"downloadsRemaining"`
	Unlimited          bool             `json:"unlimited,omitempty"`
	Template           string           `json:"template,omitempty"`
	Source             string           `json:"source,omitempty"`
	PaymentInfo        *paymentInfoView `json:"paymentInfo,omitempty"`
}

// PaymentStatus reports whether the caller has any paid access and what it
// covers. The answer is computed from payment and subscription rows on every
// call.
func (s *Server) PaymentStatus(c *gin.Context) {
	ident, ok := identity.FromContext(c)
	if !ok {
		c.JSON(http.StatusOK, paymentStatusResponse{})
		return
	}

	grant, err := s.entitlementSvc.Has(c.Request.Context(), ident, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !grant.Granted {
		c.JSON(http.StatusOK, paymentStatusResponse{})
		return
	}

	resp := paymentStatusResponse{
		HasPaid:            true,
		DownloadsRemaining: grant.Remaining,
		Unlimited:          grant.Unlimited,
		Template:           grant.Product,
		Source:             string(grant.Source),
	}
	if grant.Source == entitlement.SourcePayment {
		record, err := s.paymentRepo.FindByID(c.Request.Context(), s.db, grant.PaymentID)
		if err == nil && record != nil {
			resp.PaymentInfo = paymentInfo(record)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// DownloadGrant answers whether the caller could download the product right
// now, without consuming anything.
func (s *Server) DownloadGrant(c *gin.Context) {
	product := strings.TrimSpace(c.Param("product"))
	ident, ok := identity.FromContext(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"granted": false})
		return
	}

	grant, err := s.entitlementSvc.Has(c.Request.Context(), ident, product)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"granted":   grant.Granted,
		"remaining": grant.Remaining,
		"unlimited": grant.Unlimited,
		"source":    grant.Source,
	})
}

// ConsumeDownload spends one download of the product.
func (s *Server) ConsumeDownload(c *gin.Context) {
	product := strings.TrimSpace(c.Param("product"))
	ident, ok := identity.FromContext(c)
	if !ok {
		AbortWithError(c, entitlement.ErrNotEntitled)
		return
	}

	grant, err := s.entitlementSvc.Consume(c.Request.Context(), ident, product)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"granted":   true,
		"remaining": grant.Remaining,
		"unlimited": grant.Unlimited,
		"source":    grant.Source,
	})
}

func paymentInfo(record *paymentdomain.PaymentRecord) *paymentInfoView {
	return &paymentInfoView{
		PaymentID:     record.ID.String(),
		Product:       record.Product,
		Amount:        record.Amount,
		Status:        string(record.Status),
		PayerEmail:    record.PayerEmail,
		PaymentMethod: record.PaymentMethod,
		CreatedAt:     record.CreatedAt,
	}
}
