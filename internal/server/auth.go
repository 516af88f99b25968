package server

import (
	"net/http"

	"github.com/cvforge/cvforge/internal/identity"
	"github.com/gin-gonic/gin"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string `json:"token"`
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
}

// InitSession guarantees the caller has an anonymous session cookie before
// they start a checkout, so a later webhook can be tied back to them.
func (s *Server) InitSession(c *gin.Context) {
	ident := s.requireIdentity(c)
	c.JSON(http.StatusOK, gin.H{
		"identity": ident.Key(),
		"kind":     ident.Kind,
	})
}

func (s *Server) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	session, _ := identity.FromContext(c)
	result, err := s.accountSvc.Register(c.Request.Context(), req.Email, req.Password, session)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sessionResponse{
		Token:     result.Token,
		AccountID: result.Account.ID.String(),
		Email:     result.Account.Email,
	})
}

func (s *Server) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	session, _ := identity.FromContext(c)
	result, err := s.accountSvc.Login(c.Request.Context(), req.Email, req.Password, session)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		Token:     result.Token,
		AccountID: result.Account.ID.String(),
		Email:     result.Account.Email,
	})
}

// Logout clears the anonymous session cookie. Bearer tokens expire on their
// own; the client just drops them.
func (s *Server) Logout(c *gin.Context) {
	s.cookies.Clear(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) Me(c *gin.Context) {
	ident, ok := identity.FromContext(c)
	if !ok || !ident.IsAccount() {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	account, err := s.accountSvc.Get(c.Request.Context(), ident.AccountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accountId": account.ID.String(),
		"email":     account.Email,
		"admin":     account.Admin,
	})
}
