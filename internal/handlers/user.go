package handlers

import (
	"fmt"
	"net/http"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/models"

	"github.com/gin-gonic/gin"
)

// RegisterUser upserts a patient record. Registering the same username
// again updates the optional fields instead of failing.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req models.RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return
	}

	user, err := h.store.FindUserByName(req.UserName)
	if err != nil {
		user = &models.User{
			UserName: req.UserName,
			Category: models.CategoryGood,
		}
	}
	if req.DisplayName != "" {
		user.DisplayName = req.DisplayName
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.Email != "" {
		user.Email = req.Email
	}

	if err := h.store.UpsertUser(user); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetUser returns one user; view=admin adds counters, category and the
// messenger link state.
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.store.FindUserByName(c.Param("userName"))
	if err != nil {
		handleError(c, err)
		return
	}

	if c.Query("view") == "admin" {
		c.JSON(http.StatusOK, models.AdminUserView{
			User:        *user,
			TotalVisits: user.TotalVisits(),
			Linked:      user.Linked(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_name":    user.UserName,
		"display_name": user.DisplayName,
		"phone":        user.Phone,
	})
}

// GetUsers lists every registered user.
func (h *Handler) GetUsers(c *gin.Context) {
	users, err := h.store.ListUsers()
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// SetCategory is the admin override for a user's behavior class.
func (h *Handler) SetCategory(c *gin.Context) {
	var req models.SetCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return
	}

	category, ok := models.ParseCategory(req.Category)
	if !ok {
		handleError(c, fmt.Errorf("%w: unknown category %q", clinicerr.ErrValidation, req.Category))
		return
	}

	user, err := h.store.FindUserByName(req.UserName)
	if err != nil {
		handleError(c, err)
		return
	}
	user.Category = category
	if err := h.store.UpsertUser(user); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
