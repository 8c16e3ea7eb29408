package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grievance-management-api/services"
)

type CategoryController struct {
	categories *services.CategoryService
}

func NewCategoryController(categories *services.CategoryService) *CategoryController {
	return &CategoryController{categories: categories}
}

// List returns active categories unless active_only=false is passed.
func (cc *CategoryController) List(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	activeOnly, ok := queryBool(c, "active_only")
	if !ok {
		return
	}

	items, err := cc.categories.List(c.Request.Context(), caller, activeOnly == nil || *activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": items})
}

func (cc *CategoryController) Create(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	var req services.CategoryInput
	if !bindJSON(c, &req) {
		return
	}

	category, err := cc.categories.Create(c.Request.Context(), caller, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Category created successfully",
		"category": category,
	})
}

func (cc *CategoryController) Update(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.CategoryInput
	if !bindJSON(c, &req) {
		return
	}

	category, err := cc.categories.Update(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Category updated successfully",
		"category": category,
	})
}

func (cc *CategoryController) Delete(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := cc.categories.Delete(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category deactivated successfully"})
}
