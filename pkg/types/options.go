package types

import (
	"time"
)

const (
	// DefaultManifestFile is the manifest read from the repository root.
	DefaultManifestFile = "package.json"
	// DefaultLockfile is the classic yarn lockfile read from the repository root.
	DefaultLockfile = "yarn.lock"
	// DefaultManifestOutput is the patched manifest written next to the original.
	DefaultManifestOutput = "package-autofixed.json"
	// DefaultLockfileOutput is the patched lockfile written next to the original.
	DefaultLockfileOutput = "yarn-autofixed.lock"
	// DefaultRegistryURL is the registry queried by the npm registry client.
	DefaultRegistryURL = "https://registry.yarnpkg.com"

	RegistryNPM  = "npm"
	RegistryYarn = "yarn"
)

// Options contains common autofix options.
type Options struct {
	// Repository layout
	RepoDir        string
	ManifestFile   string
	Lockfile       string
	ManifestOutput string
	LockfileOutput string

	// Advisory feed
	Feed       string
	FeedFormat string
	IgnoreIDs  []int

	// Registry collaborator
	Registry    string
	RegistryURL string
	Timeout     time.Duration
	RetryCount  int

	// Output configuration
	VEXOutput string
	DryRun    bool
}

// WithDefaults returns a copy of o where every unset file name falls back to its default.
func (o Options) WithDefaults() Options {
	if o.ManifestFile == "" {
		o.ManifestFile = DefaultManifestFile
	}
	if o.Lockfile == "" {
		o.Lockfile = DefaultLockfile
	}
	if o.ManifestOutput == "" {
		o.ManifestOutput = DefaultManifestOutput
	}
	if o.LockfileOutput == "" {
		o.LockfileOutput = DefaultLockfileOutput
	}
	if o.Registry == "" {
		o.Registry = RegistryNPM
	}
	if o.RegistryURL == "" {
		o.RegistryURL = DefaultRegistryURL
	}
	if o.RepoDir == "" {
		o.RepoDir = "."
	}
	return o
}
