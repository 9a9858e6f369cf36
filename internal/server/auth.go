package server

import (
	"net/http"

	authdomain "github.com/counselops/letterflow/internal/auth/domain"
	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.authSvc.Register(c.Request.Context(), authdomain.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"id":           user.ID.String(),
		"email":        user.Email,
		"display_name": user.DisplayName,
		"role":         user.Role,
	}})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	principal, err := s.authSvc.Login(c.Request.Context(), authdomain.Credentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	maxAge := int(s.cfg.SessionTTL.Seconds())
	c.SetCookie(sessionCookie, principal.Session, maxAge, "/", "", s.cfg.IsProduction(), true)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user_id":    principal.UserID.String(),
		"email":      principal.Email,
		"role":       principal.Role,
		"csrf_token": principal.CSRFToken,
	}})
}

func (s *Server) Logout(c *gin.Context) {
	principal := s.principal(c)
	if principal == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.authSvc.Logout(c.Request.Context(), principal.Session); err != nil {
		AbortWithError(c, err)
		return
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", s.cfg.IsProduction(), true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Me(c *gin.Context) {
	principal := s.principal(c)
	if principal == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user_id": principal.UserID.String(),
		"email":   principal.Email,
		"role":    principal.Role,
	}})
}
