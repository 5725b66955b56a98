package main

import (
	"errors"
	"net/http"

	"github.com/erpweb/erp_backend/models"
	"github.com/erpweb/erp_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	msgProductNotFound       = "找不到產品"
	msgRequiredProductFields = "產品名稱和價格是必填的"
	msgInvalidPrice          = "價格必須是非負數且最多兩位小數"
)

type productHandler struct {
	logger *logrus.Logger
}

func (h *productHandler) productError(c *gin.Context, funcName string, err error) {
	switch {
	case errors.Is(err, models.ErrRequiredProductFields):
		c.JSON(http.StatusBadRequest, gin.H{"message": msgRequiredProductFields})
	case errors.Is(err, models.ErrInvalidPrice):
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidPrice})
	case errors.Is(err, models.ErrNothingToUpdate):
		c.JSON(http.StatusBadRequest, gin.H{"message": msgNothingToUpdate})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": msgProductNotFound})
	default:
		serverError(c, h.logger, "products", funcName, err)
	}
}

func (h *productHandler) list(c *gin.Context) {
	products, err := models.GetProducts(c.Request.Context())
	if err != nil {
		serverError(c, h.logger, "products", "list", err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *productHandler) get(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	product, err := models.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.productError(c, "get", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *productHandler) create(c *gin.Context) {
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": msgRequiredProductFields,
			"errors":  utils.ProcessValidationErrors(err),
		})
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), &input)
	if err != nil {
		h.productError(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "產品創建成功", "id": product.ID})
}

func (h *productHandler) update(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.UpdateProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindingError(c, err)
		return
	}
	if _, err := models.UpdateProduct(c.Request.Context(), id, &input); err != nil {
		h.productError(c, "update", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "產品更新成功"})
}

func (h *productHandler) delete(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	if _, err := models.DeleteProduct(c.Request.Context(), id); err != nil {
		h.productError(c, "delete", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "產品刪除成功"})
}
