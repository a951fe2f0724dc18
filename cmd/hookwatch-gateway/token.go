package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/hookwatch/internal/gateway"
)

var (
	tokenSubject string
	tokenAdmin   bool
	tokenTTL     time.Duration
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT signed with the gateway secret",
		Long:  "Mint a JWT signed with the gateway secret. Admin tokens unlock /events/stats/summary.",
		RunE:  runToken,
	}

	cmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject")
	cmd.Flags().BoolVar(&tokenAdmin, "admin", true, "Grant admin privileges")
	cmd.Flags().DurationVar(&tokenTTL, "ttl", gateway.DefaultTokenTTL, "Token lifetime")

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.Gateway.SecretKey == "" {
		return errors.New("no secret configured: pass --secret, set HOOKWATCH_SECRET or gateway.secret_key")
	}

	token, expiresAt, err := gateway.NewJWTAuth(cfg.Gateway.SecretKey).GenerateToken(tokenSubject, tokenAdmin, tokenTTL)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}
