package compare

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tqbf/zipdiff/pkg/paths"
)

// Reporter receives progress narration while Options.Verbose is set. It
// has no influence on the returned Result.
type Reporter interface {
	Begin(step string)
	End(step string)
}

type Options struct {
	Exclusions paths.Exclusions
	Verbose    bool
	Reporter   Reporter
	// Runner defaults to DiffRunner.
	Runner Runner
}

// DefaultOptions returns options with the built-in exclusion set and the
// diff(1) runner.
func DefaultOptions() Options {
	return Options{
		Exclusions: paths.DefaultExclusions(),
		Runner:     DiffRunner{},
	}
}

const (
	stepDiff  = "Diffing directories"
	stepParse = "Parsing diff results"
)

// Compare reports which root-relative paths were added, deleted or updated
// going from oldRoot to newRoot. Both roots are expected to exist; a
// missing root surfaces as ErrExecutionFailed from the runner. Compare
// either returns a complete Result or an error, never a partial Result.
func Compare(
	ctx context.Context,
	oldRoot, newRoot string,
	opts Options,
) (Result, error) {
	oldCanon, err := paths.CanonicalRoot(oldRoot)
	if err != nil {
		return Result{}, execFailed("canonicalize", err)
	}
	newCanon, err := paths.CanonicalRoot(newRoot)
	if err != nil {
		return Result{}, execFailed("canonicalize", err)
	}

	runner := opts.Runner
	if runner == nil {
		runner = DiffRunner{}
	}
	rep := opts.reporter()

	start := time.Now()
	rep.Begin(stepDiff)
	report, err := runner.Run(ctx, oldCanon, newCanon)
	if err != nil {
		return Result{}, execFailed(fmt.Sprintf("%T", runner), err)
	}
	rep.End(stepDiff)

	rep.Begin(stepParse)
	events, skipped := ParseReport(report, oldCanon, newCanon)
	result := Classify(events, opts.Exclusions)
	rep.End(stepParse)

	slog.Debug("compared",
		"old", oldCanon,
		"new", newCanon,
		"added", len(result.Added),
		"deleted", len(result.Deleted),
		"updated", len(result.Updated),
		"skipped_lines", skipped,
		"elapsed", time.Since(start),
	)
	return result, nil
}

func (o Options) reporter() Reporter {
	if !o.Verbose || o.Reporter == nil {
		return nopReporter{}
	}
	return o.Reporter
}

type nopReporter struct{}

func (nopReporter) Begin(string) {}
func (nopReporter) End(string)   {}
