// Command seed prepares a fresh database: default categories, the initial
// administrator and, optionally, a handful of sample grievances. It also
// rehashes any user whose stored password is still plaintext.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/rs/zerolog/log"

	"grievance-management-api/apperr"
	"grievance-management-api/config"
	"grievance-management-api/models"
	"grievance-management-api/services"
	"grievance-management-api/storage"
)

func strPtr(s string) *string { return &s }

var defaultCategories = []models.GrievanceCategory{
	{Name: "Academic", Description: strPtr("Courses, grading, examinations and faculty"), IsActive: true},
	{Name: "Administrative", Description: strPtr("Admissions, fees, records and office services"), IsActive: true},
	{Name: "Personal", Description: strPtr("Harassment, discrimination and personal safety"), IsActive: true},
	{Name: "Technical", Description: strPtr("Network, computer labs and campus systems"), IsActive: true},
}

type sample struct {
	title       string
	description string
	category    string
	priority    models.Priority
}

var sampleGrievances = []sample{
	{"Library WiFi keeps dropping", "The wireless network in the main library disconnects every few minutes.", "Technical", models.PriorityHigh},
	{"Exam results not published", "Results for the mid-term examination have not been published after four weeks.", "Academic", models.PriorityMedium},
	{"Fee receipt missing", "The fee payment made last month does not appear in my student account.", "Administrative", models.PriorityUrgent},
}

func main() {
	withSamples := flag.Bool("samples", false, "also insert sample grievances owned by the admin account")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logFile, _ := config.InitLogging(cfg.Logging)
	if logFile != nil {
		defer logFile.Close()
	}

	db, err := config.OpenDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer config.CloseDB(db)

	if err := config.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Database migration failed")
	}

	ctx := context.Background()
	store := storage.New(db)
	auth := services.NewAuthService(store, services.AuthConfig{
		Secret:     cfg.Auth.JWTSecret,
		BcryptCost: cfg.Auth.BcryptRounds,
	})

	if err := store.UpsertCategories(ctx, defaultCategories); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed categories")
	}
	log.Info().Int("count", len(defaultCategories)).Msg("Categories seeded")

	admin, err := ensureAdmin(ctx, store, auth, cfg.Seed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed admin user")
	}

	rehashLegacyPasswords(ctx, store, auth)

	if *withSamples {
		if err := seedSamples(ctx, store, admin); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed sample grievances")
		}
	}
	log.Info().Msg("Seeding completed")
}

func ensureAdmin(ctx context.Context, store *storage.Store, auth *services.AuthService, seed config.SeedConfig) (*models.User, error) {
	existing, err := store.FindUserByEmail(ctx, seed.AdminEmail)
	if err == nil {
		log.Info().Str("email", seed.AdminEmail).Msg("Admin user already exists, skipping")
		return existing, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(seed.AdminPassword)
	if err != nil {
		return nil, err
	}
	admin := &models.User{
		Username:     "admin",
		Email:        seed.AdminEmail,
		PasswordHash: hash,
		FirstName:    "System",
		LastName:     "Administrator",
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := store.CreateUser(ctx, admin); err != nil {
		return nil, err
	}
	log.Info().Str("email", admin.Email).Msg("Admin user created")
	return admin, nil
}

// rehashLegacyPasswords replaces plaintext passwords with bcrypt hashes.
// Failures are logged per user and do not stop the run.
func rehashLegacyPasswords(ctx context.Context, store *storage.Store, auth *services.AuthService) {
	users, err := store.ListUsersWithLegacyPasswords(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users with legacy passwords")
		return
	}
	for _, u := range users {
		hash, err := auth.HashPassword(u.PasswordHash)
		if err != nil {
			log.Warn().Err(err).Str("email", u.Email).Msg("Failed to hash password")
			continue
		}
		if err := store.UpdateUser(ctx, u.ID, map[string]interface{}{"password_hash": hash}); err != nil {
			log.Warn().Err(err).Str("email", u.Email).Msg("Failed to update password")
			continue
		}
		log.Info().Str("email", u.Email).Msg("Password rehashed")
	}
}

func seedSamples(ctx context.Context, store *storage.Store, owner *models.User) error {
	categories, err := store.ListCategories(ctx, true)
	if err != nil {
		return err
	}
	byName := make(map[string]uint, len(categories))
	for _, c := range categories {
		byName[c.Name] = c.ID
	}

	now := time.Now().UTC()
	reason := models.InitialSubmissionReason
	for _, s := range sampleGrievances {
		g := &models.Grievance{
			Title:          s.title,
			Description:    s.description,
			UserID:         owner.ID,
			Priority:       s.priority,
			Status:         models.StatusPending,
			SubmissionDate: now,
		}
		if id, ok := byName[s.category]; ok {
			g.CategoryID = &id
		}
		history := &models.GrievanceStatusHistory{
			NewStatus:    models.StatusPending,
			ChangedBy:    &owner.ID,
			ChangeReason: &reason,
			ChangedAt:    now,
		}
		if err := store.CreateGrievance(ctx, g, history, nil); err != nil {
			return err
		}
	}
	log.Info().Int("count", len(sampleGrievances)).Msg("Sample grievances created")
	return nil
}
