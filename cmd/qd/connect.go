package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/querydesk/internal/config"
	"github.com/zulandar/querydesk/internal/db"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
)

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath, "path to QueryDesk config file")
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", describeDB(cfg.Database), err)
	}

	return cfg, gormDB, nil
}

func describeDB(c config.DatabaseConfig) string {
	if c.Driver == config.DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf("%s %s:%d/%s", c.Driver, c.Host, c.Port, c.Name)
}

// actorFlags identifies who an operator command acts as.
type actorFlags struct {
	id   string
	name string
	role string
	team string

	fallbackRole string // used when neither --role nor the directory names one
}

func (a *actorFlags) bind(cmd *cobra.Command, defaultRole string) {
	a.fallbackRole = defaultRole
	cmd.Flags().StringVar(&a.id, "as", "", "user id to act as (required)")
	cmd.Flags().StringVar(&a.name, "name", "", "display name recorded in audit entries (defaults to the directory entry)")
	cmd.Flags().StringVar(&a.role, "role", "", "role to act with (originator, sales, credit, authority, admin); defaults to the directory entry")
	cmd.Flags().StringVar(&a.team, "team", "", "team for sales/credit users")
}

// resolve builds the actor, filling name, team and (when --role is empty)
// role from the user directory.
func (a *actorFlags) resolve(gormDB *gorm.DB) (role.Actor, error) {
	if a.id == "" {
		return role.Actor{}, fmt.Errorf("--as is required")
	}

	var u models.User
	if err := gormDB.Where("id = ?", a.id).Limit(1).Find(&u).Error; err != nil {
		return role.Actor{}, fmt.Errorf("load user %s: %w", a.id, err)
	}

	roleName := a.role
	if roleName == "" {
		roleName = u.Role
	}
	if roleName == "" {
		roleName = a.fallbackRole
	}
	r, ok := role.Parse(roleName)
	if !ok {
		if roleName == "" {
			return role.Actor{}, fmt.Errorf("--role is required for %s, who is not in the user directory", a.id)
		}
		return role.Actor{}, fmt.Errorf("unknown role %q", roleName)
	}

	actor := role.Actor{ID: a.id, Name: a.name, Role: r, Team: a.team}
	if actor.Name == "" {
		actor.Name = u.Name
	}
	if actor.Team == "" {
		actor.Team = u.Team
	}
	return actor, nil
}
