package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "querydesk.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qd",
		Short: "QueryDesk: loan query lifecycle and approval routing",
		Long: "QueryDesk tracks clarification queries raised against loan applications,\n" +
			"routes them to sales and credit teams, and escalates approvals to an authority.",
		SilenceUsage: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newApprovalCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newBranchCmd())
	cmd.AddCommand(newDigestCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	// Secrets may live in a .env next to the config; a missing file is fine.
	_ = godotenv.Load()
	os.Exit(execute(newRootCmd()))
}
