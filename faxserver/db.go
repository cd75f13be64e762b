package faxserver

import (
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gofaxmodem/gofaxlib"
)

func openDB() (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(getPostgresDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return db, nil
}

func migrateSchema(db *gorm.DB) error {
	return db.AutoMigrate(&SessionRecord{}, &gofaxlib.RemoteTrouble{})
}

func getPostgresDSN() string {
	host := gofaxlib.Config.Database.Host
	if host == "" {
		host = "localhost"
	}

	port := gofaxlib.Config.Database.Port
	if port == "" {
		port = "5432"
	}

	user := gofaxlib.Config.Database.User
	password := gofaxlib.Config.Database.Password
	dbName := gofaxlib.Config.Database.Database
	sslMode := os.Getenv("POSTGRES_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	timeZone := os.Getenv("POSTGRES_TIMEZONE")
	if timeZone == "" {
		timeZone = "UTC"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		host, port, user, password, dbName, sslMode, timeZone,
	)
}
