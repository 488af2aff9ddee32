package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/airvoyage/reservation-backend/internal/services"
	"github.com/airvoyage/reservation-backend/internal/utils"
)

func main() {
	adminPassword := flag.String("admin-password", "", "operator password to hash for ADMIN_PASSWORD_HASH")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("Secret Generator for AirVoyage Reservations")
	fmt.Println("===========================================")
	fmt.Println()

	jwtSecret, err := utils.GenerateSecret(32)
	if err != nil {
		log.Fatalf("Failed to generate JWT secret: %v", err)
	}
	webhookSecret, err := utils.GenerateSecret(32)
	if err != nil {
		log.Fatalf("Failed to generate webhook secret: %v", err)
	}

	fmt.Println("Add these to your .env file or deployment secrets:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
	fmt.Printf("WEBHOOK_SECRET=%s\n", webhookSecret)

	if *adminPassword != "" {
		hash, err := services.HashPassword(*adminPassword, 0)
		if err != nil {
			log.Fatalf("Failed to hash admin password: %v", err)
		}
		fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hash)
	}

	fmt.Println()
	fmt.Println("Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
