package compare

import (
	"log/slog"
	"sort"

	"github.com/tqbf/zipdiff/pkg/paths"
)

// Classify groups events by category, drops excluded paths and sorts each
// list. The first category seen for a path wins; later events for the same
// path are ignored. Lists are never nil.
func Classify(events []Event, excl paths.Exclusions) Result {
	seen := make(map[string]Category, len(events))
	var added, deleted, updated []string

	for _, ev := range events {
		if prev, dup := seen[ev.Path]; dup {
			if prev != ev.Category {
				slog.Debug("path reported in two categories",
					"path", ev.Path,
					"kept", prev,
					"dropped", ev.Category,
				)
			}
			continue
		}
		seen[ev.Path] = ev.Category

		if excl.Match(ev.Path) {
			slog.Debug("excluded", "path", ev.Path)
			continue
		}

		switch ev.Category {
		case Added:
			added = append(added, ev.Path)
		case Deleted:
			deleted = append(deleted, ev.Path)
		case Updated:
			updated = append(updated, ev.Path)
		}
	}

	return Result{
		Added:   sorted(added),
		Deleted: sorted(deleted),
		Updated: sorted(updated),
	}
}

func sorted(s []string) []string {
	if s == nil {
		return []string{}
	}
	sort.Strings(s)
	return s
}
