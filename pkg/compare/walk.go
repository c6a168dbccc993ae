package compare

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/tqbf/zipdiff/pkg/paths"
)

// WalkRunner compares two trees natively, hashing file contents with
// SHA-256, and renders the outcome in the same report grammar diff(1)
// produces in brief recursive mode. Entries below a directory that exists
// on one side only are not listed; the directory is reported once.
type WalkRunner struct {
	// Workers bounds concurrent hashing; zero means runtime.NumCPU().
	Workers int
}

type treeNode struct {
	dir  bool
	hash string
}

type tree map[string]treeNode

type fileJob struct {
	relPath string
	absPath string
}

type hashResult struct {
	relPath string
	hash    string
	err     error
}

func (r WalkRunner) Run(
	ctx context.Context,
	oldRoot, newRoot string,
) (string, error) {
	oldTree, err := r.walk(ctx, oldRoot)
	if err != nil {
		return "", &ExecError{Tool: "walk", Args: []string{oldRoot}, Err: err}
	}
	newTree, err := r.walk(ctx, newRoot)
	if err != nil {
		return "", &ExecError{Tool: "walk", Args: []string{newRoot}, Err: err}
	}
	return renderReport(oldRoot, newRoot, oldTree, newTree), nil
}

func (r WalkRunner) walk(ctx context.Context, root string) (tree, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	t := make(tree)
	var jobs []fileJob
	if err := walkInto(ctx, root, "", t, &jobs); err != nil {
		return nil, err
	}

	results, err := r.hashAll(ctx, jobs)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		t[res.relPath] = treeNode{hash: res.hash}
	}
	return t, nil
}

// walkInto records every entry below dir under relBase. Symlinks are
// followed the way diff(1) follows them: a link to a directory is listed
// and descended into, unless it points back at one of its own ancestors.
func walkInto(
	ctx context.Context,
	dir, relBase string,
	t tree,
	jobs *[]fileJob,
) error {
	return filepath.WalkDir(
		dir,
		func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			rel = filepath.Join(relBase, rel)

			if d.IsDir() {
				t[rel] = treeNode{dir: true}
				return nil
			}
			if d.Type().IsRegular() {
				*jobs = append(*jobs, fileJob{relPath: rel, absPath: p})
				return nil
			}
			if d.Type()&fs.ModeSymlink == 0 {
				return nil
			}

			info, err := os.Stat(p)
			if err != nil {
				slog.Debug("skip dangling symlink", "path", p)
				return nil
			}
			switch {
			case info.Mode().IsRegular():
				*jobs = append(*jobs, fileJob{relPath: rel, absPath: p})
			case info.IsDir():
				t[rel] = treeNode{dir: true}
				if paths.SymlinkLoops(p) {
					slog.Debug("symlink loop", "path", p)
					return nil
				}
				target, err := filepath.EvalSymlinks(p)
				if err != nil {
					return err
				}
				return walkInto(ctx, target, rel, t, jobs)
			}
			return nil
		},
	)
}

func (r WalkRunner) hashAll(
	ctx context.Context,
	jobs []fileJob,
) ([]hashResult, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers == 0 {
		return nil, nil
	}

	jobCh := make(chan fileJob, len(jobs))
	resultCh := make(chan hashResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hashWorker(ctx, jobCh, resultCh)
		}()
	}

	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	wg.Wait()
	close(resultCh)

	results := make([]hashResult, 0, len(jobs))
	for res := range resultCh {
		if res.err != nil {
			return nil, res.err
		}
		results = append(results, res)
	}
	return results, nil
}

func hashWorker(
	ctx context.Context,
	jobs <-chan fileJob,
	results chan<- hashResult,
) {
	buf := make([]byte, 1<<20)
	for j := range jobs {
		if err := ctx.Err(); err != nil {
			results <- hashResult{relPath: j.relPath, err: err}
			continue
		}
		h, err := hashFile(j.absPath, buf)
		results <- hashResult{j.relPath, h, err}
	}
}

func hashFile(absPath string, buf []byte) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// renderReport emits one line per difference. An entry is listed only when
// its parent directory exists on both sides, matching how diff(1) stops
// descending at a one-sided directory.
func renderReport(oldRoot, newRoot string, oldTree, newTree tree) string {
	var lines []string

	common := func(rel string) bool {
		parent := filepath.Dir(rel)
		if parent == "." {
			return true
		}
		o, okO := oldTree[parent]
		n, okN := newTree[parent]
		return okO && okN && o.dir && n.dir
	}

	for rel, o := range oldTree {
		if !common(rel) {
			continue
		}
		n, ok := newTree[rel]
		switch {
		case !ok:
			lines = append(lines, onlyInLine(oldRoot, rel))
		case o.dir != n.dir:
			lines = append(lines, typeChangeLine(oldRoot, newRoot, rel, o, n))
		case !o.dir && o.hash != n.hash:
			lines = append(lines, fmt.Sprintf(
				"Files %s and %s differ",
				filepath.Join(oldRoot, rel),
				filepath.Join(newRoot, rel),
			))
		}
	}
	for rel := range newTree {
		if _, ok := oldTree[rel]; ok || !common(rel) {
			continue
		}
		lines = append(lines, onlyInLine(newRoot, rel))
	}

	if len(lines) == 0 {
		return ""
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

func onlyInLine(root, rel string) string {
	dir := root
	if parent := filepath.Dir(rel); parent != "." {
		dir = filepath.Join(root, parent)
	}
	return fmt.Sprintf("Only in %s: %s", dir, filepath.Base(rel))
}

func typeChangeLine(oldRoot, newRoot, rel string, o, n treeNode) string {
	kind := func(t treeNode) string {
		if t.dir {
			return "directory"
		}
		return "regular file"
	}
	return fmt.Sprintf(
		"File %s is a %s while file %s is a %s",
		filepath.Join(oldRoot, rel), kind(o),
		filepath.Join(newRoot, rel), kind(n),
	)
}
