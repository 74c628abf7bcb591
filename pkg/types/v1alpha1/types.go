package v1alpha1

const APIVersion string = "v1alpha1"

type Resolve struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Dev      bool   `json:"dev,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Bundled  bool   `json:"bundled,omitempty"`
}

type FixAction struct {
	Action   string    `json:"action"`
	Module   string    `json:"module"`
	Target   string    `json:"target"`
	Resolves []Resolve `json:"resolves"`
}

// FixFeed is the versioned envelope of a fix feed written by external tooling.
type FixFeed struct {
	APIVersion string      `json:"apiVersion"`
	Actions    []FixAction `json:"actions"`
}
