package main

import (
	"errors"
	"net/http"

	"github.com/erpweb/erp_backend/config"
	"github.com/erpweb/erp_backend/middlewares"
	"github.com/erpweb/erp_backend/models"
	"github.com/erpweb/erp_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	msgServerError        = "伺服器錯誤"
	msgValidation         = "資料驗證錯誤"
	msgRequiredFields     = "所有欄位都是必填的"
	msgInvalidEmail       = "Email 格式錯誤"
	msgDuplicateUsername  = "使用者名稱已存在"
	msgDuplicateEmail     = "Email 已被使用"
	msgInvalidCredentials = "使用者名稱或密碼錯誤"
	msgMissingToken       = "未提供認證令牌"
	msgInvalidToken       = "無效的認證令牌"
	msgUserNotFound       = "找不到使用者"
	msgNothingToUpdate    = "至少需要提供一個要更新的欄位"
	msgInvalidId          = "無效的編號"
)

type loginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authHandler struct {
	logger *logrus.Logger
}

func (h *authHandler) register(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		bindingError(c, err)
		return
	}
	user, token, err := models.Register(c.Request.Context(), &input)
	if err != nil {
		userError(c, h.logger, "register", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "註冊成功",
		"token":   token,
		"user":    user.Info(),
	})
}

func (h *authHandler) login(c *gin.Context) {
	var input loginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindingError(c, err)
		return
	}
	info, err := models.Login(c.Request.Context(), input.Username, input.Password)
	if errors.Is(err, models.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": msgInvalidCredentials})
		return
	}
	if err != nil {
		serverError(c, h.logger, "auth", "login", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *authHandler) verify(c *gin.Context) {
	token, ok := utils.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": msgMissingToken})
		return
	}
	claims, err := middlewares.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": msgInvalidToken})
		return
	}
	user, err := models.GetUser(c.Request.Context(), claims.ID)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": msgUserNotFound})
		return
	}
	if err != nil {
		serverError(c, h.logger, "auth", "verify", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.Info()})
}

func bindingError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"message": msgValidation,
		"errors":  utils.ProcessValidationErrors(err),
	})
}

func serverError(c *gin.Context, logger *logrus.Logger, module, funcName string, err error) {
	config.LogError(logger, module, funcName, c.Request.URL.Path, nil, err)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": msgServerError})
}

// userError maps user operation failures onto client messages.
func userError(c *gin.Context, logger *logrus.Logger, funcName string, err error) {
	switch {
	case errors.Is(err, models.ErrRequiredUserFields):
		c.JSON(http.StatusBadRequest, gin.H{"message": msgRequiredFields})
	case errors.Is(err, models.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidEmail})
	case errors.Is(err, utils.ErrorDuplicateUsername):
		c.JSON(http.StatusBadRequest, gin.H{"message": msgDuplicateUsername})
	case errors.Is(err, utils.ErrorDuplicateEmail):
		c.JSON(http.StatusBadRequest, gin.H{"message": msgDuplicateEmail})
	case errors.Is(err, models.ErrNothingToUpdate):
		c.JSON(http.StatusBadRequest, gin.H{"message": msgNothingToUpdate})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": msgUserNotFound})
	default:
		serverError(c, logger, "users", funcName, err)
	}
}
