package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/tree"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

var lsCmd = &cobra.Command{
	Use:   "ls [folder]",
	Short: "List a folder's children, folders first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder := ""
		if len(args) == 1 {
			folder = args[0]
		}
		return sess.manager.View(func(_ string, t *tree.Tree) error {
			p, err := t.Resolve(folder)
			if err != nil {
				return err
			}
			files, folders, err := t.ListChildren(p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range folders {
				fmt.Fprintln(out, vpath.ItemName(f)+vpath.Sep)
			}
			for _, f := range files {
				fmt.Fprintln(out, vpath.ItemName(f))
			}
			return nil
		})
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree [folder]",
	Short: "Print the workspace as an indented tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder := ""
		if len(args) == 1 {
			folder = args[0]
		}
		return sess.manager.View(func(ws string, t *tree.Tree) error {
			p, err := t.Resolve(folder)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			// Children of a named folder sit one level in from its header.
			base := vpath.Depth(p)
			if p == vpath.Root {
				fmt.Fprintf(out, "%s:\n", ws)
				base++
			} else {
				fmt.Fprintln(out, p)
			}
			return t.Walk(p, func(n models.Node, depth int) error {
				name := vpath.ItemName(n.Path)
				if n.IsDir() {
					name += vpath.Sep
				}
				fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", depth-base), name)
				return nil
			})
		})
	},
}

var mkdirParents bool

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <folder>...",
	Short: "Create folders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			if mkdirParents {
				if err := mkdirAll(arg); err != nil {
					return err
				}
				continue
			}
			if _, err := sess.manager.AddFolder(sess.ctx, arg); err != nil {
				return err
			}
		}
		return nil
	},
}

// mkdirAll creates raw and any missing ancestors.
func mkdirAll(raw string) error {
	p, err := sess.manager.Rules().Normalize(raw, models.KindFolder)
	if err != nil {
		return err
	}
	chain := append([]string{p}, vpath.Ancestors(p)...)
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i] == vpath.Root {
			continue
		}
		if _, err := sess.manager.AddFolder(sess.ctx, chain[i]); err != nil && !errors.Is(err, models.ErrAlreadyExists) {
			return err
		}
	}
	return nil
}

var touchCmd = &cobra.Command{
	Use:   "touch <file>...",
	Short: "Create empty files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			_, err := sess.manager.AddFile(sess.ctx, arg)
			if err != nil && !isExistingFile(arg, err) {
				return err
			}
		}
		return nil
	},
}

func isExistingFile(raw string, err error) bool {
	if !errors.Is(err, models.ErrAlreadyExists) {
		return false
	}
	exists := false
	_ = sess.manager.View(func(_ string, t *tree.Tree) error {
		p, nerr := t.Rules().Normalize(raw, models.KindFile)
		exists = nerr == nil && t.Exists(p)
		return nil
	})
	return exists
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Remove files and folders, with their contents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			removed, err := sess.manager.Delete(sess.ctx, arg)
			if err != nil {
				return err
			}
			for _, p := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", p)
			}
		}
		return nil
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <source> <destination>",
	Short: "Move a node into a folder, or to a new path",
	Long: `If destination is an existing folder (or ends with "/") the source is
dropped into it, keeping its name. Otherwise destination is the full new path.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, dest := args[0], args[1]
		var err error
		var from, to string
		if isFolderTarget(dest) {
			res, derr := sess.manager.Drop(sess.ctx, source, dest)
			from, to, err = res.From, res.To, derr
		} else {
			res, merr := sess.manager.Move(sess.ctx, source, dest)
			from, to, err = res.From, res.To, merr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", from, to)
		return nil
	},
}

func isFolderTarget(raw string) bool {
	if raw == "" || strings.HasSuffix(raw, vpath.Sep) {
		return true
	}
	folder := false
	_ = sess.manager.View(func(_ string, t *tree.Tree) error {
		p, err := t.Resolve(raw)
		folder = err == nil && t.IsFolder(p)
		return nil
	})
	return folder
}

var renameCmd = &cobra.Command{
	Use:   "rename <path> <new-name>",
	Short: "Rename a node within its folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := sess.manager.Rename(sess.ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", res.From, res.To)
		return nil
	},
}

func init() {
	mkdirCmd.Flags().BoolVarP(&mkdirParents, "parents", "p", false, "create missing parent folders")

	rootCmd.AddCommand(lsCmd, treeCmd, mkdirCmd, touchCmd, rmCmd, mvCmd, renameCmd)
}
