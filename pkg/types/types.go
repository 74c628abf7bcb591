package types

// RepoSummary is one row of the bulk run summary.
type RepoSummary struct {
	Name    string
	Path    string
	Status  string
	Patches int
	Error   string
}
