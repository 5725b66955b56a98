package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erpweb/erp_backend/config"
	"github.com/erpweb/erp_backend/utils"
	"github.com/shopspring/decimal"
)

var (
	ErrRequiredProductFields = errors.New("name and price are required")
	ErrInvalidPrice          = errors.New("price must be a non-negative amount with at most two decimals")
)

var maxPrice = decimal.New(1, 8) // decimal(10,2)

type Product struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name        string           `json:"name" binding:"required"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price" binding:"required"`
}

type UpdateProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() || price.GreaterThanOrEqual(maxPrice) || !price.Equal(price.Truncate(2)) {
		return ErrInvalidPrice
	}
	return nil
}

func (input *NewProduct) validate() error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" || input.Price == nil {
		return ErrRequiredProductFields
	}
	return validatePrice(*input.Price)
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	product := Product{
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
		Price:       *input.Price,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	return utils.FetchModel[Product](ctx, id)
}

// GetProducts lists newest first.
func GetProducts(ctx context.Context) ([]*Product, error) {
	return utils.FetchAllModels[Product](ctx, "created_at DESC", "id DESC")
}

func UpdateProduct(ctx context.Context, id int, input *UpdateProductInput) (*Product, error) {
	name := utils.NilIfBlank(input.Name)
	if name == nil && input.Description == nil && input.Price == nil {
		return nil, ErrNothingToUpdate
	}
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return nil, err
		}
	}

	product, err := GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if name != nil {
		updates["name"] = *name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Price != nil {
		updates["price"] = *input.Price
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(product).Updates(updates).Error; err != nil {
		return nil, err
	}
	return GetProduct(ctx, id)
}

func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	product, err := GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}
