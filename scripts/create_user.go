package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/incident-report-api/config"
	"github.com/linesmerrill/incident-report-api/databases"
	"github.com/linesmerrill/incident-report-api/intake"
	"github.com/linesmerrill/incident-report-api/models"
)

// Quick utility to add a user to the users collection
// Usage: go run scripts/create_user.go <email> <password> <role> [phone]
func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: go run scripts/create_user.go <email> <password> <role> [phone]")
		fmt.Println("Example: go run scripts/create_user.go admin@example.org 0i2rinbcp12yc31h admin 215-555-0123")
		os.Exit(1)
	}
	email, password, role := os.Args[1], os.Args[2], os.Args[3]
	if role != models.RoleAdmin && role != models.RoleUser {
		fmt.Printf("Role must be %q or %q\n", models.RoleAdmin, models.RoleUser)
		os.Exit(1)
	}

	phone := ""
	if len(os.Args) > 4 {
		var err error
		phone, err = intake.NormalizePhone(os.Args[4])
		if err != nil {
			fmt.Printf("Invalid phone number: %v\n", err)
			os.Exit(1)
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("Error generating hash: %v\n", err)
		os.Exit(1)
	}

	conf := config.New()
	client, err := databases.NewClient(conf)
	if err != nil {
		fmt.Printf("Error creating client: %v\n", err)
		os.Exit(1)
	}
	if err := client.Connect(); err != nil {
		fmt.Printf("Error connecting: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer client.Disconnect(ctx)

	now := primitive.NewDateTimeFromTime(time.Now())
	user := models.User{
		ID: primitive.NewObjectID(),
		Details: models.UserDetails{
			Email:       email,
			Password:    string(hashedPassword),
			PhoneNumber: phone,
			Role:        role,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	if _, err := databases.NewUserDatabase(databases.NewDatabase(conf, client)).InsertOne(ctx, user); err != nil {
		fmt.Printf("Error inserting user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s user %s (%s)\n", role, email, user.ID.Hex())
}
