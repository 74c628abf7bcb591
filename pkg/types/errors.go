package types

import "errors"

var (
	// ErrMalformedRange indicates a patched version range that does not follow the semver range grammar.
	// For a direct dependency this aborts the whole remediation run.
	ErrMalformedRange = errors.New("malformed patched version range")

	// ErrNoVersionsAvailable indicates the registry returned no version list for a direct dependency.
	ErrNoVersionsAvailable = errors.New("registry did not provide a list of available package versions")

	// ErrRegistryQuery indicates a failed query against the package registry.
	ErrRegistryQuery = errors.New("package registry query failed")

	// ErrPathNotFound indicates a dependency path that does not match the lockfile topology.
	ErrPathNotFound = errors.New("dependency path not found in lockfile")

	// ErrOutputMissing indicates an output artifact that is absent after it was written.
	ErrOutputMissing = errors.New("autofix output file missing after write")

	// ErrUnexpected wraps any internal fault recovered at the remediation entry point.
	ErrUnexpected = errors.New("unexpected error while auto-fixing vulnerabilities")
)
