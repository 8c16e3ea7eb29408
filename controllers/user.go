package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grievance-management-api/services"
)

type UserController struct {
	users *services.UserService
}

func NewUserController(users *services.UserService) *UserController {
	return &UserController{users: users}
}

func (uc *UserController) List(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	isActive, ok := queryBool(c, "is_active")
	if !ok {
		return
	}

	list, err := uc.users.List(c.Request.Context(), caller, services.ListUsersInput{
		Page:      page,
		Limit:     limit,
		Search:    c.Query("search"),
		Role:      c.Query("role"),
		IsActive:  isActive,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (uc *UserController) Get(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := uc.users.Get(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (uc *UserController) Update(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateUserInput
	if !bindJSON(c, &req) {
		return
	}

	user, err := uc.users.Update(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "User updated successfully",
		"user":    user,
	})
}

func (uc *UserController) ChangePassword(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.ChangePasswordInput
	if !bindJSON(c, &req) {
		return
	}

	if err := uc.users.ChangePassword(c.Request.Context(), caller, id, req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

func (uc *UserController) ToggleStatus(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	user, err := uc.users.ToggleStatus(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	state := "deactivated"
	if user.IsActive {
		state = "activated"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "User " + state + " successfully",
		"user":    user,
	})
}

func (uc *UserController) Delete(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := uc.users.Delete(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
