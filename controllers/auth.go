package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grievance-management-api/middleware"
	"grievance-management-api/services"
)

type AuthController struct {
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

func (ac *AuthController) Register(c *gin.Context) {
	var req services.RegisterInput
	if !bindJSON(c, &req) {
		return
	}

	caller, _ := middleware.CallerFrom(c)
	session, err := ac.auth.Register(c.Request.Context(), caller, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "User registered successfully",
		"user":       session.User,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

func (ac *AuthController) Login(c *gin.Context) {
	var req services.LoginInput
	if !bindJSON(c, &req) {
		return
	}

	session, err := ac.auth.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Login successful",
		"user":       session.User,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

func (ac *AuthController) Profile(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	user, err := ac.auth.Profile(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (ac *AuthController) Refresh(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	session, err := ac.auth.Refresh(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Token refreshed successfully",
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

func (ac *AuthController) Logout(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	ac.auth.Logout(caller)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}
