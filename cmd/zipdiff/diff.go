package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/zipdiff/pkg/compare"
	"github.com/tqbf/zipdiff/pkg/config"
)

func diffCmd() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "show which paths were added, updated or deleted",
		ArgsUsage: "<oldBuildDir> <newBuildDir>",
		Flags: append(compareFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "JSON output",
			},
		),
		Action: diffAction,
	}
}

type diffJSON struct {
	Added   []string    `json:"added"`
	Updated []string    `json:"updated"`
	Deleted []string    `json:"deleted"`
	Summary diffSummary `json:"summary"`
}

type diffSummary struct {
	AddedCount   int `json:"added_count"`
	UpdatedCount int `json:"updated_count"`
	DeletedCount int `json:"deleted_count"`
	Total        int `json:"total"`
}

func diffAction(c *cli.Context) error {
	oldDir, newDir, err := requireBuildDirs(
		c, "zipdiff diff <oldBuildDir> <newBuildDir>",
	)
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	opts, err := compareOptions(c, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(c)
	defer cancel()

	result, err := compare.Compare(ctx, oldDir, newDir, opts)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(diffJSON{
			Added:   result.Added,
			Updated: result.Updated,
			Deleted: result.Deleted,
			Summary: diffSummary{
				AddedCount:   len(result.Added),
				UpdatedCount: len(result.Updated),
				DeletedCount: len(result.Deleted),
				Total:        result.Count(),
			},
		})
	}

	if result.Empty() {
		fmt.Fprintln(c.App.Writer, "No differences.")
		return nil
	}

	var b strings.Builder
	for _, p := range result.Added {
		fmt.Fprintf(&b, "  + %s\n", p)
	}
	for _, p := range result.Updated {
		fmt.Fprintf(&b, "  ~ %s\n", p)
	}
	for _, p := range result.Deleted {
		fmt.Fprintf(&b, "  - %s\n", p)
	}
	fmt.Fprintf(&b, "---\n")
	fmt.Fprintf(&b,
		"%d added, %d updated, %d deleted\n",
		len(result.Added), len(result.Updated), len(result.Deleted),
	)
	fmt.Fprint(c.App.Writer, b.String())
	return nil
}
