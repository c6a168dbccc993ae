package compare

import "sort"

type Category string

const (
	Added   Category = "added"
	Deleted Category = "deleted"
	Updated Category = "updated"
)

// Result holds the root-relative paths that differ between two trees, one
// sorted list per category. A path appears in at most one list.
type Result struct {
	Added   []string `json:"added"`
	Deleted []string `json:"deleted"`
	Updated []string `json:"updated"`
}

func (r Result) Empty() bool {
	return len(r.Added) == 0 &&
		len(r.Deleted) == 0 &&
		len(r.Updated) == 0
}

// Changed returns the paths that must be uploaded: added and updated,
// merged and sorted.
func (r Result) Changed() []string {
	out := make([]string, 0, len(r.Added)+len(r.Updated))
	out = append(out, r.Added...)
	out = append(out, r.Updated...)
	sort.Strings(out)
	return out
}

func (r Result) Count() int {
	return len(r.Added) + len(r.Deleted) + len(r.Updated)
}
