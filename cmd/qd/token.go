package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/querydesk/internal/api"
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		actor      actorFlags
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token for a user",
		Long: "Signs a token with server.jwt_secret. Role, name and team come from the user\n" +
			"directory unless overridden with flags.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, configPath, &actor, ttl)
		},
	}

	addConfigFlag(cmd, &configPath)
	actor.bind(cmd, "")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime; 0 issues a token without expiry")
	return cmd
}

func runToken(cmd *cobra.Command, configPath string, af *actorFlags, ttl time.Duration) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret (or QD_JWT_SECRET) is not set")
	}

	actor, err := af.resolve(gormDB)
	if err != nil {
		return err
	}
	tok, err := api.IssueToken(cfg.Server.JWTSecret, actor, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
