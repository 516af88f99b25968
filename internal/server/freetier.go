package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	featureQuestionViews     = "question_views"
	featureInterviewSessions = "interview_sessions"
)

// ViewQuestion spends one free question view, unless the caller has paid
// access, which bypasses the daily cap entirely.
func (s *Server) ViewQuestion(c *gin.Context) {
	s.consumeFreeFeature(c, featureQuestionViews)
}

// StartInterview spends one free practice interview session per day.
func (s *Server) StartInterview(c *gin.Context) {
	s.consumeFreeFeature(c, featureInterviewSessions)
}

func (s *Server) consumeFreeFeature(c *gin.Context, feature string) {
	ident := s.requireIdentity(c)

	// Paid access short-circuits the free-tier counter.
	grant, err := s.entitlementSvc.Has(c.Request.Context(), ident, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if grant.Granted && grant.Unlimited {
		c.JSON(http.StatusOK, gin.H{"allowed": true, "premium": true})
		return
	}

	decision, err := s.freetierSvc.TryConsume(c.Request.Context(), ident, feature)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !decision.Allowed {
		c.JSON(http.StatusForbidden, gin.H{
			"allowed":         false,
			"used":            decision.Used,
			"limit":           decision.Limit,
			"requiresPayment": true,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"allowed":   true,
		"used":      decision.Used,
		"limit":     decision.Limit,
		"remaining": decision.Remaining,
	})
}

// FreeTierStatus reports today's usage for a feature without consuming.
func (s *Server) FreeTierStatus(c *gin.Context) {
	feature := strings.TrimSpace(c.Param("feature"))
	ident := s.requireIdentity(c)

	decision, err := s.freetierSvc.Peek(c.Request.Context(), ident, feature)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}
