package main

import (
	"net/http"
	"strconv"

	"github.com/erpweb/erp_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type userHandler struct {
	logger *logrus.Logger
}

// paramId reads the :id path parameter; on failure the response is already written.
func paramId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidId})
		return 0, false
	}
	return id, true
}

func (h *userHandler) list(c *gin.Context) {
	users, err := models.GetUsers(c.Request.Context())
	if err != nil {
		serverError(c, h.logger, "users", "list", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *userHandler) get(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	user, err := models.GetUser(c.Request.Context(), id)
	if err != nil {
		userError(c, h.logger, "get", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *userHandler) create(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		bindingError(c, err)
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		userError(c, h.logger, "create", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "使用者創建成功", "id": user.ID})
}

func (h *userHandler) update(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.UpdateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindingError(c, err)
		return
	}
	if _, err := models.UpdateUser(c.Request.Context(), id, &input); err != nil {
		userError(c, h.logger, "update", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "使用者更新成功"})
}

func (h *userHandler) delete(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	if _, err := models.DeleteUser(c.Request.Context(), id); err != nil {
		userError(c, h.logger, "delete", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "使用者刪除成功"})
}
