package utils

import (
	"context"
	"fmt"

	"github.com/erpweb/erp_backend/config"
)

// ValidateUnique fails with dup when another row already holds value in column.
// exceptId > 0 excludes the row being updated.
func ValidateUnique[T any](ctx context.Context, column string, value interface{}, exceptId int, dup error) error {
	var count int64
	var err error
	if exceptId <= 0 {
		count, err = ResourceCountWhere[T](ctx, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, column+" = ? AND NOT id = ?", value, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		if dup != nil {
			return dup
		}
		return fmt.Errorf("duplicate %s", column)
	}
	return nil
}

// count records, using WHERE $condition
func ResourceCountWhere[T any](ctx context.Context, condition string, value ...interface{}) (int64, error) {
	var model T
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&model).Where(condition, value...).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
