package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
	"github.com/Diduck/notion-idea-pipeline/internal/inbox"
	"github.com/Diduck/notion-idea-pipeline/internal/output"
)

var addCmd = &cobra.Command{
	Use:   "add <month|results|product> <idea>...",
	Short: "Append ideas to one inbox section",
	Long: `Append each remaining argument as its own line to the section's inbox file.
Sections may also be given by display name, e.g. "MON MOI".`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := ideasync.ParseCategory(args[0])
		if err != nil {
			return err
		}
		lines := make([]string, 0, len(args)-1)
		for _, arg := range args[1:] {
			if line := strings.TrimSpace(arg); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			return fmt.Errorf("%w: nothing to add", ideasync.ErrInvalidInput)
		}
		dir, err := inbox.Open(cfg.Inbox.Dir)
		if err != nil {
			return err
		}
		if err := dir.Append(category, strings.Join(lines, "\n")); err != nil {
			return err
		}
		output.Success("Added %d to %s", len(lines), output.FormatCategory(category))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Append ideas from JSON or YAML documents to the inbox",
	Long: `Each document is an object with optional "month", "results" and "product"
keys whose values are a string (one idea per line) or a list of strings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := inbox.Open(cfg.Inbox.Dir)
		if err != nil {
			return err
		}
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			parsed, err := dir.Import(filepath.Base(path), data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			count := 0
			for _, text := range parsed {
				count += len(ideasync.SplitLines(text))
			}
			output.Success("Imported %d ideas from %s", count, path)
		}
		return nil
	},
}
