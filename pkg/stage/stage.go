// Package stage copies the changed entries of a build into an output
// directory, keeping their root-relative layout.
package stage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/tqbf/zipdiff/pkg/paths"
)

type copyJob struct {
	relPath string
	src     string
	dst     string
	mode    fs.FileMode
}

// Stage copies every relPath from srcRoot into outDir. A path naming a
// directory is copied with its complete subtree, minus any entry excl
// matches; symlinks are followed. outDir is created if it does not exist.
// It returns the number of regular files written.
func Stage(
	ctx context.Context,
	srcRoot, outDir string,
	relPaths []string,
	excl paths.Exclusions,
) (int, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	c := collector{outDir: outDir, excl: excl}
	for _, rel := range relPaths {
		if err := paths.ValidateRelPath(rel); err != nil {
			return 0, fmt.Errorf("invalid path %s: %w", rel, err)
		}
		src := filepath.Join(srcRoot, rel)
		dst := filepath.Join(outDir, rel)
		if !paths.IsWithinDir(srcRoot, src) ||
			!paths.IsWithinDir(outDir, dst) {
			return 0, fmt.Errorf("path escapes root: %s", rel)
		}
		if err := c.collect(src, rel); err != nil {
			return 0, err
		}
	}

	jobs := c.jobs
	if err := copyAll(ctx, jobs); err != nil {
		return 0, err
	}
	slog.Debug("staged",
		"paths", len(relPaths),
		"files", len(jobs),
		"out", outDir,
	)
	return len(jobs), nil
}

type collector struct {
	outDir string
	excl   paths.Exclusions
	jobs   []copyJob
}

// collect expands the entry at src, staged as rel, into file copy jobs,
// creating destination directories as it goes so empty directories
// survive staging.
func (c *collector) collect(src, rel string) error {
	if c.excl.Match(rel) {
		slog.Debug("skip excluded", "path", rel)
		return nil
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}
	switch {
	case info.IsDir():
		return c.collectDir(src, rel)
	case info.Mode().IsRegular():
		c.addFile(src, rel, info.Mode().Perm())
	default:
		slog.Debug("skip non-regular", "path", rel)
	}
	return nil
}

func (c *collector) addFile(src, rel string, mode fs.FileMode) {
	c.jobs = append(c.jobs, copyJob{
		relPath: rel,
		src:     src,
		dst:     filepath.Join(c.outDir, rel),
		mode:    mode,
	})
}

func (c *collector) collectDir(src, rel string) error {
	dir, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", rel, err)
	}
	err = filepath.WalkDir(
		dir,
		func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			sub, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			entryRel := filepath.Join(rel, sub)
			if sub != "." && c.excl.Match(entryRel) {
				slog.Debug("skip excluded", "path", entryRel)
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				dst := filepath.Join(c.outDir, entryRel)
				if err := os.MkdirAll(dst, 0755); err != nil {
					return fmt.Errorf("mkdir %s: %w", entryRel, err)
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				if _, err := os.Stat(p); err != nil {
					slog.Debug("skip dangling symlink", "path", entryRel)
					return nil
				}
				if paths.SymlinkLoops(p) {
					slog.Debug("skip symlink loop", "path", entryRel)
					return nil
				}
				return c.collect(p, entryRel)
			}
			if !d.Type().IsRegular() {
				slog.Debug("skip non-regular", "path", entryRel)
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			c.addFile(p, entryRel, info.Mode().Perm())
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("walk %s: %w", rel, err)
	}
	return nil
}

func copyAll(ctx context.Context, jobs []copyJob) error {
	workers := runtime.NumCPU()
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers == 0 {
		return nil
	}

	jobCh := make(chan copyJob, len(jobs))
	errCh := make(chan error, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 1<<20)
			for j := range jobCh {
				if err := ctx.Err(); err != nil {
					errCh <- err
					continue
				}
				if err := copyFile(j, buf); err != nil {
					errCh <- err
				}
			}
		}()
	}

	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	wg.Wait()
	close(errCh)

	return <-errCh
}

func copyFile(j copyJob, buf []byte) error {
	if err := os.MkdirAll(filepath.Dir(j.dst), 0755); err != nil {
		return fmt.Errorf("mkdir parent %s: %w", j.relPath, err)
	}

	in, err := os.Open(j.src)
	if err != nil {
		return fmt.Errorf("open %s: %w", j.relPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(
		j.dst,
		os.O_CREATE|os.O_WRONLY|os.O_TRUNC,
		j.mode,
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", j.relPath, err)
	}

	_, copyErr := io.CopyBuffer(out, in, buf)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", j.relPath, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", j.relPath, closeErr)
	}
	return nil
}
