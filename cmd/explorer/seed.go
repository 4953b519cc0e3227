package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

var seedPrefix string

var seedCmd = &cobra.Command{
	Use:   "seed <dir>",
	Short: "Mirror a local directory's structure into the workspace",
	Long: `seed walks dir and adds every folder and file it finds to the workspace,
under --prefix if given. Hidden entries are skipped and nodes that already
exist are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]
		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", root)
		}

		prefix := strings.Trim(seedPrefix, vpath.Sep)
		if prefix != "" {
			if err := mkdirAll(prefix + vpath.Sep); err != nil {
				return err
			}
		}

		var folders, files int
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			target := filepath.ToSlash(rel)
			if prefix != "" {
				target = prefix + vpath.Sep + target
			}

			if d.IsDir() {
				if err := mkdirAll(target + vpath.Sep); err != nil {
					return err
				}
				folders++
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if _, err := sess.manager.AddFile(sess.ctx, target); err != nil && !isExistingFile(target, err) {
				logging.Warn("Skipping file", logging.Path(target), logging.Err(err))
				return nil
			}
			files++
			return nil
		})
		if err != nil {
			return err
		}

		ws, _ := sess.manager.Active()
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %s: %d folders, %d files\n", ws, folders, files)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedPrefix, "prefix", "", "folder to seed into")
	rootCmd.AddCommand(seedCmd)
}
