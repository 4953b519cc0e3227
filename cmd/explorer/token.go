package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/explorer/internal/auth"
)

var (
	tokenSubject  string
	tokenReadOnly bool
)

var tokenCmd = &cobra.Command{
	Use:         "token",
	Short:       "Issue an API token signed with JWT_SECRET",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationSession: sessionNone},
	RunE: func(cmd *cobra.Command, args []string) error {
		a := auth.New(sess.cfg.JWTSecret, sess.cfg.TokenTTL)
		if a == nil {
			return errors.New("JWT_SECRET is not set")
		}
		token, err := a.IssueToken(tokenSubject, tokenReadOnly)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "explorer-cli", "token subject")
	tokenCmd.Flags().BoolVar(&tokenReadOnly, "read-only", false, "restrict the token to reads")
	rootCmd.AddCommand(tokenCmd)
}
