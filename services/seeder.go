package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/avelkar/aria/backend/models"
	"github.com/avelkar/aria/backend/repository"
)

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo     *repository.GORMRepository
	personas *PersonaStore
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.GORMRepository, personas *PersonaStore) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo, personas: personas}
}

// SeedDatabase seeds the database with demo accounts (idempotent)
func (s *DatabaseSeeder) SeedDatabase() error {
	ctx := context.Background()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("Password1!"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	users := []models.User{
		{
			Email:     "test@example.com",
			Username:  "testuser",
			Password:  string(hashedPassword),
			FirstName: "Test",
			LastName:  "User",
			City:      "Seattle",
			State:     "WA",
			Timezone:  "America/Los_Angeles",
		},
		{
			Email:     "demo@example.com",
			Username:  "demouser",
			Password:  string(hashedPassword),
			FirstName: "Demo",
			LastName:  "User",
			City:      "Austin",
			State:     "TX",
			Timezone:  "America/Chicago",
		},
	}

	for _, user := range users {
		if err := s.seedUser(ctx, user); err != nil {
			slog.Error("Failed to seed user", "email", user.Email, "error", err)
		}
	}

	slog.Info("Database seeding completed")
	return nil
}

// seedUser seeds a single user with default preference and an unset calendar
// token row (idempotent)
func (s *DatabaseSeeder) seedUser(ctx context.Context, user models.User) error {
	existingUser, err := s.repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("error checking user %s: %w", user.Email, err)
	}

	if existingUser != nil {
		slog.Info("User already exists, skipping", "email", user.Email)
		return nil
	}

	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}

	if err := s.repo.CreatePreference(ctx, &models.Preference{
		UserID:    user.ID,
		ThemeMode: "light",
		Persona:   s.personas.DefaultKey(),
	}); err != nil {
		return fmt.Errorf("failed to create preference for %s: %w", user.Email, err)
	}

	if err := s.repo.CreateCalendarToken(ctx, &models.CalendarToken{UserID: user.ID}); err != nil {
		return fmt.Errorf("failed to create calendar token for %s: %w", user.Email, err)
	}

	slog.Info("Created user", "email", user.Email)
	return nil
}
