package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/zipdiff/pkg/compare"
	"github.com/tqbf/zipdiff/pkg/config"
	"github.com/tqbf/zipdiff/pkg/pack"
	"github.com/tqbf/zipdiff/pkg/paths"
	"github.com/tqbf/zipdiff/pkg/stage"
	"github.com/tqbf/zipdiff/pkg/upload"
)

const defaultOutput = "build_for_upload"

func buildCmd() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "stage and archive the files that changed between two builds",
		ArgsUsage: "<oldBuildDir> <newBuildDir>",
		Flags: append(compareFlags(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				EnvVars: []string{"ZIPDIFF_OUTPUT"},
				Usage:   "staging directory (default " + defaultOutput + ")",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "archive format: zip or tar.gz",
			},
			&cli.BoolFlag{
				Name:  "clean",
				Usage: "remove the staging directory before copying",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "list changes without staging or archiving",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "suppress progress narration",
			},
			&cli.StringFlag{
				Name:    "upload-url",
				EnvVars: []string{"ZIPDIFF_UPLOAD_URL"},
				Usage:   "object store base URL to upload the archive to",
			},
			&cli.StringFlag{
				Name:    "upload-token",
				EnvVars: []string{"ZIPDIFF_UPLOAD_TOKEN"},
				Usage:   "bearer token for the object store",
			},
			&cli.StringFlag{
				Name:  "upload-prefix",
				Usage: "key prefix for uploaded objects",
			},
		),
		Action: buildAction,
	}
}

type buildSettings struct {
	output       string
	format       pack.Format
	uploadURL    string
	uploadToken  string
	uploadPrefix string
}

func resolveBuildSettings(
	c *cli.Context, cfg config.Config,
) (buildSettings, error) {
	format, err := pack.ParseFormat(
		stringOption(c, "format", cfg.Format, ""),
	)
	if err != nil {
		return buildSettings{}, err
	}
	output, err := filepath.Abs(
		stringOption(c, "output", cfg.Output, defaultOutput),
	)
	if err != nil {
		return buildSettings{}, fmt.Errorf("resolve output: %w", err)
	}
	return buildSettings{
		output:       filepath.Clean(output),
		format:       format,
		uploadURL:    stringOption(c, "upload-url", cfg.Upload.URL, ""),
		uploadToken:  c.String("upload-token"),
		uploadPrefix: stringOption(c, "upload-prefix", cfg.Upload.Prefix, ""),
	}, nil
}

func buildAction(c *cli.Context) error {
	oldDir, newDir, err := requireBuildDirs(
		c, "zipdiff build <oldBuildDir> <newBuildDir>",
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
	settings, err := resolveBuildSettings(c, cfg)
	if err != nil {
		return err
	}
	if err := checkOutputOutside(settings.output, oldDir, newDir); err != nil {
		return err
	}

	var (
		w      = c.App.Writer
		quiet  = c.Bool("quiet")
		dryRun = c.Bool("dry-run")
		rep    = stepReporter{w: w}
	)
	if quiet {
		rep.w = io.Discard
	}
	opts.Verbose = !quiet
	opts.Reporter = rep

	ctx, cancel := contextWithTimeout(c)
	defer cancel()

	fmt.Fprintf(rep.w, "Comparing %s against %s...\n",
		nameColor.Sprint(oldDir), nameColor.Sprint(newDir),
	)
	result, err := compare.Compare(ctx, oldDir, newDir, opts)
	if err != nil {
		return err
	}

	if result.Empty() {
		fmt.Fprintf(w,
			"No files were different between %q and %q\n",
			oldDir, newDir,
		)
		return nil
	}

	changed := result.Changed()
	if dryRun {
		printList(w, deletedColor,
			"The following files would be deleted:", result.Deleted,
		)
		printList(w, changedColor,
			"The following files would be changed:", changed,
		)
		return nil
	}

	if c.Bool("clean") {
		if err := os.RemoveAll(settings.output); err != nil {
			return fmt.Errorf("clean output: %w", err)
		}
	}

	var staged int
	err = rep.run("Copying over changed files", func() error {
		staged, err = stage.Stage(
			ctx, newDir, settings.output, changed, opts.Exclusions,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}

	archivePath := settings.output + settings.format.Ext()
	var archived int
	err = rep.run("Zipping changed files", func() error {
		archived, err = pack.ArchiveFile(
			settings.output, archivePath, settings.format,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	slog.Debug("packaged",
		"changes", result.Count(),
		"staged", staged,
		"archived", archived,
		"archive", archivePath,
	)

	if settings.uploadURL != "" {
		err = rep.run("Uploading", func() error {
			return uploadPackage(ctx, settings, archivePath, result)
		})
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
	}

	printList(w, deletedColor,
		"The following files were deleted:", result.Deleted,
	)
	printList(w, changedColor,
		"The following files were changed:", changed,
	)

	fmt.Fprintf(w,
		"\nAll changed files have been copied to %s, and zipped in %s",
		pathColor.Sprint(displayPath(settings.output)),
		pathColor.Sprint(displayPath(archivePath)),
	)
	if info, err := os.Stat(archivePath); err == nil {
		fmt.Fprintf(w, " (%s)", humanBytes(info.Size()))
	}
	fmt.Fprintln(w)
	return nil
}

// checkOutputOutside refuses staging directories inside either build,
// which would feed the package back into the next comparison, and ones
// that contain a build, which --clean would remove.
func checkOutputOutside(output string, roots ...string) error {
	output, err := paths.CanonicalRoot(output)
	if err != nil {
		return err
	}
	for _, root := range roots {
		canon, err := paths.CanonicalRoot(root)
		if err != nil {
			return err
		}
		if paths.IsWithinDir(canon, output) {
			return fmt.Errorf(
				"output %s is inside build directory %s",
				output, root,
			)
		}
		if paths.IsWithinDir(output, canon) {
			return fmt.Errorf(
				"output %s contains build directory %s",
				output, root,
			)
		}
	}
	return nil
}

func uploadPackage(
	ctx context.Context,
	s buildSettings,
	archivePath string,
	result compare.Result,
) error {
	client := upload.New(s.uploadURL, s.uploadToken)

	contentType := "application/zip"
	if s.format == pack.FormatTarGz {
		contentType = "application/gzip"
	}
	archiveKey := upload.Key(s.uploadPrefix, filepath.Base(archivePath))
	if err := client.PutFile(
		ctx, archiveKey, contentType, archivePath,
	); err != nil {
		return err
	}

	manifestKey := upload.Key(
		s.uploadPrefix, filepath.Base(s.output)+".manifest.json",
	)
	return client.PutManifest(ctx, manifestKey, upload.Manifest{
		Added:   slashPaths(result.Added),
		Updated: slashPaths(result.Updated),
		Deleted: slashPaths(result.Deleted),
	})
}

func slashPaths(in []string) []string {
	out := make([]string, len(in))
	for i, p := range in {
		out[i] = filepath.ToSlash(p)
	}
	return out
}

// displayPath shows p relative to the working directory when it is below it.
func displayPath(p string) string {
	wd, err := os.Getwd()
	if err != nil {
		return p
	}
	rel, err := filepath.Rel(wd, p)
	if err != nil || !filepath.IsLocal(rel) {
		return p
	}
	return rel
}
