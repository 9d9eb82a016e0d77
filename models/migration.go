package models

import (
	"log"

	"github.com/farmadata/autofarma_backend/config"
)

func MigrateTable() {
	db := config.GetDB()
	if db == nil {
		return
	}

	err := db.AutoMigrate(
		&TraceRecord{},
		&HumanAlertRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
