package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"certintake/internal/config"
	"certintake/internal/service"
)

type tokenOptions struct {
	Subject string
	Role    string
	TTL     time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with the configured JWT secret",
		Long: `Issue an API token for the certificate intake API.

Operators may upload and read documents; the service role is meant for the
mail pipeline that calls POST /api/v1/intake.

Example:
  token --subject ops@example.com --role operator --ttl 8h
  token --subject mail-pipeline --role service --ttl 720h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return issue(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "token subject (required)")
	cmd.Flags().StringVar(&opts.Role, "role", service.RoleOperator, "role (operator|service)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func issue(opts *tokenOptions, cmd *cobra.Command) error {
	if opts.Role != service.RoleOperator && opts.Role != service.RoleService {
		return fmt.Errorf("invalid role %q: must be %s or %s", opts.Role, service.RoleOperator, service.RoleService)
	}
	if opts.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	token, err := service.NewAuthService(cfg.JWT).IssueToken(opts.Subject, opts.Role, opts.TTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
