package db

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zulandar/querydesk/internal/config"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Query{},
		&models.SubQuery{},
		&models.ApprovalRequest{},
		&models.ChatMessage{},
		&models.Branch{},
		&models.BranchAssignment{},
		&models.User{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedBranches upserts Branch rows from configuration, keyed by code.
func SeedBranches(db *gorm.DB, branches []config.BranchConfig) error {
	for _, bc := range branches {
		b := models.Branch{
			ID:     uuid.NewString(),
			Code:   bc.Code,
			Name:   bc.Name,
			Active: true,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "active"}),
		}).Create(&b)
		if result.Error != nil {
			return fmt.Errorf("db: seed branch %q: %w", bc.Code, result.Error)
		}
	}
	return nil
}

// SeedUsers upserts directory entries from configuration.
func SeedUsers(db *gorm.DB, users []config.UserConfig) error {
	for _, uc := range users {
		r, _ := role.Parse(uc.Role)
		u := models.User{
			ID:             uc.ID,
			Name:           uc.Name,
			Role:           string(r),
			Team:           uc.Team,
			Active:         !uc.Inactive,
			DecidableTypes: strings.Join(uc.DecidableTypes, ","),
		}
		if u.Name == "" {
			u.Name = u.ID
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "role", "team", "active", "decidable_types"}),
		}).Create(&u)
		if result.Error != nil {
			return fmt.Errorf("db: seed user %q: %w", uc.ID, result.Error)
		}
	}
	return nil
}
