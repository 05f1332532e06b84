package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/querydesk/internal/telegraph"
)

func newDigestCmd() *cobra.Command {
	var (
		configPath string
		minAge     time.Duration
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Post a digest of approval requests left pending too long",
		Long: "Builds the pending-request digest once and posts it to every configured\n" +
			"telegraph adapter. Use --dry-run to print it instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd, configPath, minAge, dryRun)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().DurationVar(&minAge, "min-age", 0, "report requests older than this (overrides telegraph.digest_min_age)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the digest without posting it")
	return cmd
}

func runDigest(cmd *cobra.Command, configPath string, minAge time.Duration, dryRun bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if minAge <= 0 {
		minAge = cfg.Telegraph.DigestMinAge
	}
	out := cmd.OutOrStdout()

	if dryRun {
		items, err := telegraph.BuildDigest(gormDB, minAge, time.Now())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintf(out, "No requests pending longer than %s.\n", minAge)
			return nil
		}
		evt := telegraph.FormatDigest(items, minAge)
		fmt.Fprintln(out, evt.Title)
		fmt.Fprintln(out, evt.Body)
		return nil
	}

	ctx := context.Background()
	n, err := newNotifier(ctx, cfg.Telegraph)
	if err != nil {
		return err
	}
	defer n.Close()
	if !n.Enabled() {
		return fmt.Errorf("no telegraph adapter configured; set slack, discord or mail in %s", configPath)
	}

	d, err := telegraph.NewDigest(telegraph.DigestOpts{DB: gormDB, Notifier: n, MinAge: minAge})
	if err != nil {
		return err
	}
	count, err := d.Send(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Fprintf(out, "No requests pending longer than %s.\n", minAge)
		return nil
	}
	fmt.Fprintf(out, "Digest posted: %d pending requests\n", count)
	return nil
}
