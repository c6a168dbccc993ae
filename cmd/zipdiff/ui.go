package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	stepColor    = color.New(color.FgYellow)
	doneColor    = color.New(color.FgGreen)
	deletedColor = color.New(color.FgRed)
	changedColor = color.New(color.FgGreen)
	pathColor    = color.New(color.FgCyan)
	nameColor    = color.New(color.FgMagenta)
)

// stepReporter narrates pipeline steps as "Step... Done".
type stepReporter struct {
	w io.Writer
}

func (r stepReporter) Begin(step string) {
	stepColor.Fprintf(r.w, "%s... ", step)
}

func (r stepReporter) End(string) {
	doneColor.Fprintln(r.w, "Done")
}

// run narrates fn as a single step. The step is left open on error so the
// error message follows it.
func (r stepReporter) run(step string, fn func() error) error {
	r.Begin(step)
	if err := fn(); err != nil {
		fmt.Fprintln(r.w)
		return err
	}
	r.End(step)
	return nil
}

func printList(
	w io.Writer, c *color.Color, heading string, items []string,
) {
	if len(items) == 0 {
		return
	}
	c.Fprintf(w, "\n%s\n", heading)
	for _, p := range items {
		fmt.Fprintf(w, "  %s\n", p)
	}
}
