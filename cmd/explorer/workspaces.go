package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var workspacesCmd = &cobra.Command{
	Use:         "workspaces",
	Aliases:     []string{"ws"},
	Short:       "List workspaces",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationSession: sessionStoreOnly},
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := sess.manager.List(sess.ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var workspacesCreateCmd = &cobra.Command{
	Use:         "create <name>",
	Short:       "Create an empty workspace",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationSession: sessionStoreOnly},
	RunE: func(cmd *cobra.Command, args []string) error {
		return sess.manager.Create(sess.ctx, args[0])
	},
}

var workspacesRemoveCmd = &cobra.Command{
	Use:         "rm <name>",
	Short:       "Delete a workspace and its stored tree",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationSession: sessionStoreOnly},
	RunE: func(cmd *cobra.Command, args []string) error {
		return sess.manager.Remove(sess.ctx, args[0])
	},
}

func init() {
	workspacesCmd.AddCommand(workspacesCreateCmd, workspacesRemoveCmd)
	rootCmd.AddCommand(workspacesCmd)
}
