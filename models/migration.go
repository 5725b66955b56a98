package models

import (
	"errors"
	"log"

	"github.com/erpweb/erp_backend/config"
	"gorm.io/gorm"
)

// MigrateTable migrates the application database only; the ERP schema is
// owned by the ERP system.
func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Product{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
