package compare

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExecutionFailed is matched by every error Compare returns when the
// recursive-diff primitive could not run or exited with a status other than
// "differences found".
var ErrExecutionFailed = errors.New("comparison execution failed")

type ExecError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Tool)
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " exited %d", e.ExitCode)
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		fmt.Fprintf(&b, ": %s", msg)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func (e *ExecError) Is(target error) bool {
	return target == ErrExecutionFailed
}

func execFailed(tool string, err error) error {
	var ee *ExecError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecError{Tool: tool, Err: err}
}
