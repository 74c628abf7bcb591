package unversioned

import "strings"

const (
	// ActionUpdate is the only fix action produced by the audit feed.
	ActionUpdate = "update"
	// NoPatchAvailable is the target sentinel of an advisory without a fixed release.
	NoPatchAvailable = "No patch available"
	// PathDelimiter separates package names in a dependency path.
	PathDelimiter = ">"
	// AdvisoryURL prefixes the numeric id of an npm advisory.
	AdvisoryURL = "https://www.npmjs.com/advisories/"
)

// FixFeed is the ordered advisory feed consumed by a remediation run.
type FixFeed []FixAction

type FixAction struct {
	Action   string    `json:"action"`
	Module   string    `json:"module"`
	Target   string    `json:"target"`
	Resolves []Resolve `json:"resolves"`
}

type Resolve struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Dev      bool   `json:"dev"`
	Optional bool   `json:"optional"`
	Bundled  bool   `json:"bundled"`
}

// HasPatch reports whether the action carries a usable patched range.
func (a FixAction) HasPatch() bool {
	t := strings.TrimSpace(a.Target)
	return t != "" && t != NoPatchAvailable
}

// PathElements splits a delimiter-joined dependency path into package names.
func PathElements(path string) []string {
	var out []string
	for _, p := range strings.Split(path, PathDelimiter) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Finding is one (advisory, dependency path) pair taken from the feed.
type Finding struct {
	Module string
	Target string
	Path   []string
	ID     int
}

// IsDirect reports whether the finding targets a dependency declared in the manifest: its path is
// the vulnerable module alone.
func (f Finding) IsDirect() bool {
	return len(f.Path) == 1 && f.Path[0] == f.Module
}

// Findings flattens the feed into one finding per resolve entry, dropping actions without a patch.
func (feed FixFeed) Findings() []Finding {
	var out []Finding
	for _, a := range feed {
		if !a.HasPatch() {
			continue
		}
		for _, r := range a.Resolves {
			path := PathElements(r.Path)
			if len(path) == 0 {
				continue
			}
			out = append(out, Finding{
				Module: a.Module,
				Target: strings.TrimSpace(a.Target),
				Path:   path,
				ID:     r.ID,
			})
		}
	}
	return out
}

const (
	PatchManifest    = "manifest"
	PatchEntry       = "lockfile-entry"
	PatchParentRange = "lockfile-dependency"
)

// AppliedPatch records one change made to the manifest or the lockfile.
type AppliedPatch struct {
	Kind        string `json:"kind"`
	Package     string `json:"package"`
	From        string `json:"from"`
	To          string `json:"to"`
	Key         string `json:"key,omitempty"`
	Parent      string `json:"parent,omitempty"`
	Section     string `json:"section,omitempty"`
	AdvisoryIDs []int  `json:"advisoryIDs,omitempty"`
}
