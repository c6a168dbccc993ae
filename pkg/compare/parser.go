package compare

import (
	"bufio"
	"path/filepath"
	"strings"

	"github.com/tqbf/zipdiff/pkg/paths"
)

// Event is one classified line of a comparison report.
type Event struct {
	Category Category
	Path     string
}

const (
	onlyInPrefix = "only in "
	filesPrefix  = "files "
	differSuffix = " differ"
	andSep       = " and "
)

// ParseReport turns a brief recursive diff report into events. Lines that
// match none of the recognised forms are skipped and counted.
//
// Recognised forms, keywords case-insensitive, roots matched verbatim:
//
//	Only in <oldRoot>[/subdir]: <name>
//	Only in <newRoot>[/subdir]: <name>
//	Files <oldRoot>/<rel> and <newRoot>/<rel> differ
func ParseReport(
	report, oldRoot, newRoot string,
) (events []Event, skipped int) {
	sc := bufio.NewScanner(strings.NewReader(report))
	sc.Buffer(make([]byte, 64<<10), 16<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		ev, ok := ParseLine(line, oldRoot, newRoot)
		if !ok {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

func ParseLine(line, oldRoot, newRoot string) (Event, bool) {
	if hasPrefixFold(line, onlyInPrefix) {
		return parseOnlyIn(
			line[len(onlyInPrefix):], oldRoot, newRoot,
		)
	}
	if hasPrefixFold(line, filesPrefix) &&
		hasSuffixFold(line, differSuffix) &&
		len(line) >= len(filesPrefix)+len(differSuffix) {
		body := line[len(filesPrefix) : len(line)-len(differSuffix)]
		return parseFiles(body, oldRoot, newRoot)
	}
	return Event{}, false
}

func parseOnlyIn(rest, oldRoot, newRoot string) (Event, bool) {
	// A root that is a string prefix of the other must be tried last.
	type candidate struct {
		root string
		cat  Category
	}
	cands := []candidate{
		{oldRoot, Deleted},
		{newRoot, Added},
	}
	if len(newRoot) > len(oldRoot) {
		cands[0], cands[1] = cands[1], cands[0]
	}

	for _, c := range cands {
		if c.root == "" || !strings.HasPrefix(rest, c.root) {
			continue
		}
		tail := rest[len(c.root):]
		if !strings.HasPrefix(tail, ": ") &&
			!startsWithSeparator(tail) &&
			!endsWithSeparator(c.root) {
			continue
		}
		subdir, name, ok := strings.Cut(tail, ": ")
		if !ok || name == "" {
			continue
		}
		relDir, ok := relativeTo(c.root, c.root+subdir)
		if !ok {
			continue
		}
		rel := name
		if relDir != "." {
			rel = filepath.Join(relDir, name)
		}
		return Event{Category: c.cat, Path: rel}, true
	}
	return Event{}, false
}

func parseFiles(body, oldRoot, newRoot string) (Event, bool) {
	var fallback string
	for i := 0; i+len(andSep) <= len(body); i++ {
		if !strings.EqualFold(body[i:i+len(andSep)], andSep) {
			continue
		}
		oldPath := body[:i]
		newPath := body[i+len(andSep):]
		if !strings.HasPrefix(oldPath, oldRoot) ||
			!strings.HasPrefix(newPath, newRoot) {
			continue
		}
		oldRel, ok := relativeTo(oldRoot, oldPath)
		if !ok || oldRel == "." {
			continue
		}
		newRel, ok := relativeTo(newRoot, newPath)
		if ok && newRel == oldRel {
			return Event{Category: Updated, Path: oldRel}, true
		}
		if fallback == "" {
			fallback = oldRel
		}
	}
	if fallback != "" {
		return Event{Category: Updated, Path: fallback}, true
	}
	return Event{}, false
}

// relativeTo expresses p relative to root. It fails when p is not root
// itself or a descendant of it.
func relativeTo(root, p string) (string, bool) {
	if root == "" || !strings.HasPrefix(p, root) {
		return "", false
	}
	tail := p[len(root):]
	if tail != "" && !startsWithSeparator(tail) &&
		!endsWithSeparator(root) {
		return "", false
	}
	rel, err := filepath.Rel(
		filepath.Clean(root),
		filepath.Clean(root+string(filepath.Separator)+paths.TrimSeparators(tail)),
	)
	if err != nil {
		return "", false
	}
	if rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return paths.TrimSeparators(rel), true
}

func startsWithSeparator(s string) bool {
	return s != "" && (s[0] == '/' || s[0] == filepath.Separator)
}

func endsWithSeparator(s string) bool {
	return s != "" &&
		(s[len(s)-1] == '/' || s[len(s)-1] == filepath.Separator)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) &&
		strings.EqualFold(s[:len(prefix)], prefix)
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) &&
		strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
