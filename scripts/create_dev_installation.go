package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Seeds a fake installation into the local sqlite database so the resource
// endpoints can be exercised without going through a real marketplace install.
// The tokens are placeholders and will fail against the real upstream.
func main() {
	// Parse command line flags
	locationID := flag.String("location", "dev-location", "Location id to attach to the installation")
	expiresIn := flag.Duration("expires-in", time.Hour, "How long until the fake access token expires")
	flag.Parse()

	db, err := gorm.Open(sqlite.Open("installations.sqlite"), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := db.AutoMigrate(&models.Installation{}); err != nil {
		log.Fatal("Failed to migrate schema:", err)
	}

	// Check if a dev installation already exists for this location
	var existing models.Installation
	if err := db.Where("location_id = ?", *locationID).First(&existing).Error; err == nil {
		fmt.Printf("Development installation already exists for location '%s'!\n", *locationID)
		fmt.Printf("Installation ID: %s\n", existing.ID)
		return
	}

	now := time.Now()
	installation := models.Installation{
		ID:           uuid.New().String(),
		AccessToken:  "dev-access-token",
		RefreshToken: "dev-refresh-token",
		TokenType:    models.TokenClassLocation,
		ExpiresAt:    now.Add(*expiresIn),
		LocationID:   *locationID,
		Status:       models.StatusValid,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	installation.SetScopes([]string{"products.write", "products/prices.write", "medias.write"})

	if err := db.Create(&installation).Error; err != nil {
		log.Fatal("Failed to create installation:", err)
	}

	fmt.Printf("✓ Development installation created for location '%s'!\n", *locationID)
	fmt.Printf("Installation ID: %s\n", installation.ID)
	fmt.Println("\nUse it for local testing:")
	fmt.Printf("curl 'http://localhost:8080/api/products?installation_id=%s'\n", installation.ID)
}
