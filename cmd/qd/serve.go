package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/querydesk/internal/api"
	"github.com/zulandar/querydesk/internal/telegraph"
	"github.com/zulandar/querydesk/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the QueryDesk HTTP API",
		Long: "Serves the query, approval, chat and branch operations under /api/v1.\n" +
			"When telegraph.digest_cron is set, the pending-request digest also runs on that schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, quiet)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "disable the request access log")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, quiet bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret (or QD_JWT_SECRET) is required to serve")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := telemetry.Setup(cfg.Telemetry)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Printf("qd: telemetry shutdown: %v", err)
		}
	}()

	svc, err := newServices(ctx, cfg, gormDB)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	checks := map[string]api.Check{}
	if svc.lock != nil {
		checks["redis"] = svc.lock.Ping
	}
	opts := api.ServerOpts{
		DB:        gormDB,
		Router:    svc.router,
		JWTSecret: cfg.Server.JWTSecret,
		Port:      cfg.Server.Port,
		GinMode:   cfg.Server.GinMode,
		Out:       out,
		Checks:    checks,
	}
	if !quiet {
		opts.AccessLog = out
	}
	srv, err := api.New(opts)
	if err != nil {
		return err
	}

	if cfg.Telegraph.DigestCron != "" {
		if !svc.notifier.Enabled() {
			fmt.Fprintln(out, "Digest schedule set but no telegraph adapter is configured; skipping digest.")
		} else {
			d, err := telegraph.NewDigest(telegraph.DigestOpts{
				DB:       gormDB,
				Notifier: svc.notifier,
				MinAge:   cfg.Telegraph.DigestMinAge,
			})
			if err != nil {
				return err
			}
			go func() {
				if err := d.Run(ctx, cfg.Telegraph.DigestCron); err != nil {
					log.Printf("qd: digest: %v", err)
				}
			}()
			fmt.Fprintf(out, "Digest scheduled: %s\n", cfg.Telegraph.DigestCron)
		}
	}

	err = srv.Start(ctx)
	fmt.Fprintln(out, "Shutting down...")
	return err
}
