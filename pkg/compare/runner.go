package compare

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
)

// Runner produces a textual comparison report for two canonical roots.
// Every line of the report follows the grammar understood by ParseReport.
type Runner interface {
	Run(ctx context.Context, oldRoot, newRoot string) (string, error)
}

// exitDifferences is the status diff(1) uses for "differences found".
const exitDifferences = 1

// DiffRunner shells out to diff(1) in brief recursive mode.
type DiffRunner struct {
	// Binary overrides the executable; empty means "diff" from PATH.
	Binary string
}

func (r DiffRunner) binary() string {
	if r.Binary != "" {
		return r.Binary
	}
	return "diff"
}

func (r DiffRunner) Run(
	ctx context.Context,
	oldRoot, newRoot string,
) (string, error) {
	bin := r.binary()
	args := []string{"-q", "-r", oldRoot, newRoot}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C", "LANG=C")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		slog.Debug("diff found no differences",
			"old", oldRoot, "new", newRoot,
		)
		return stdout.String(), nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", &ExecError{
			Tool:   bin,
			Args:   args,
			Stderr: stderr.String(),
			Err:    ctxErr,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code == exitDifferences {
			slog.Debug("diff found differences",
				"old", oldRoot,
				"new", newRoot,
				"bytes", stdout.Len(),
			)
			return stdout.String(), nil
		}
		return "", &ExecError{
			Tool:     bin,
			Args:     args,
			ExitCode: code,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}

	return "", &ExecError{
		Tool:   bin,
		Args:   args,
		Stderr: stderr.String(),
		Err:    err,
	}
}
