package paths

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Exclusions is a set of root-relative paths that are always dropped from
// comparison results. Entries without glob metacharacters match only the
// identical relative path; entries with them are matched with doublestar
// against the slash form of the path.
type Exclusions struct {
	exact    map[string]struct{}
	patterns []string
}

// DefaultExclusions returns the OS metadata files that never belong in an
// upload package.
func DefaultExclusions() Exclusions {
	return NewExclusions(
		".DS_Store",
		"**/.DS_Store",
		"Thumbs.db",
		"**/Thumbs.db",
		"desktop.ini",
	)
}

func NewExclusions(entries ...string) Exclusions {
	var e Exclusions
	return e.With(entries...)
}

// With returns a copy of e extended by entries. The receiver is not modified.
func (e Exclusions) With(entries ...string) Exclusions {
	out := Exclusions{
		exact:    make(map[string]struct{}, len(e.exact)+len(entries)),
		patterns: append([]string(nil), e.patterns...),
	}
	for p := range e.exact {
		out.exact[p] = struct{}{}
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		slashed := strings.TrimPrefix(
			filepath.ToSlash(entry), "/",
		)
		if isPattern(slashed) {
			if doublestar.ValidatePattern(slashed) {
				out.patterns = append(out.patterns, slashed)
			}
			continue
		}
		out.exact[CleanRelPath(slashed)] = struct{}{}
	}
	return out
}

func (e Exclusions) Match(relPath string) bool {
	slashed := CleanRelPath(filepath.ToSlash(relPath))
	if _, ok := e.exact[slashed]; ok {
		return true
	}
	for _, pat := range e.patterns {
		if matched, _ := doublestar.Match(pat, slashed); matched {
			return true
		}
	}
	return false
}

// Entries lists the set in sorted order, exact paths first.
func (e Exclusions) Entries() []string {
	exact := make([]string, 0, len(e.exact))
	for p := range e.exact {
		exact = append(exact, p)
	}
	sort.Strings(exact)
	return append(exact, e.patterns...)
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
