package main

import (
	"fmt"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/auth"

	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token signed with JWT_ACCESS_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := auth.GenerateAccessToken(cfg.JWTSecret, tokenUser, tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "admin", "user id (sub)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleAdmin, "role: admin or user")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
