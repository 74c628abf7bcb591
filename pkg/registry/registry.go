// Package registry queries package metadata from an npm-compatible registry.
package registry

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/project-copacetic/autofix/pkg/types"
	"github.com/tidwall/gjson"
)

// Client returns metadata for a package. With an empty version the package-level document is
// queried; otherwise the document of that exact version, which carries its dist metadata.
type Client interface {
	Info(ctx context.Context, name, version string) (*PackageInfo, error)
}

// New returns the client for mode: the registry HTTP API ("npm") or the yarn CLI run in dir ("yarn").
func New(mode, dir string, cfg Config) (Client, error) {
	switch mode {
	case "", types.RegistryNPM:
		return NewNPMClient(cfg), nil
	case types.RegistryYarn:
		return NewYarnClient(dir, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported registry mode %q, must be one of: %s, %s", mode, types.RegistryNPM, types.RegistryYarn)
	}
}

// PackageInfo is the subset of registry metadata used for remediation.
type PackageInfo struct {
	Name     string
	Version  string
	Versions []string
	Dist     *Dist
}

// Dist describes the published tarball of a single version.
type Dist struct {
	Tarball   string
	Shasum    string
	Integrity string
}

// Resolved returns the lockfile form of the tarball location: "<tarball>#<shasum>".
func (d *Dist) Resolved() string {
	if d.Shasum == "" {
		return d.Tarball
	}
	return d.Tarball + "#" + d.Shasum
}

// SRI returns the subresource integrity of the tarball. Old packages only publish a sha1
// shasum, which is converted to its "sha1-<base64>" form the way yarn does.
func (d *Dist) SRI() string {
	if d.Integrity != "" {
		return d.Integrity
	}
	sum, err := hex.DecodeString(d.Shasum)
	if err != nil || len(sum) == 0 {
		return ""
	}
	return "sha1-" + base64.StdEncoding.EncodeToString(sum)
}

// ParseInfo reads a registry document. The document may be a registry response, where versions
// is an object keyed by version, or `yarn info --json` output, where the fields are nested under
// "data" and versions is an array.
func ParseInfo(data []byte) (*PackageInfo, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON document", types.ErrRegistryQuery)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: expected a JSON object", types.ErrRegistryQuery)
	}

	get := func(path string) gjson.Result {
		if r := doc.Get(path); r.Exists() {
			return r
		}
		return doc.Get("data." + path)
	}

	info := &PackageInfo{
		Name:    get("name").String(),
		Version: get("version").String(),
	}

	versions := get("versions")
	switch {
	case versions.IsArray():
		for _, v := range versions.Array() {
			info.Versions = append(info.Versions, v.String())
		}
	case versions.IsObject():
		versions.ForEach(func(k, _ gjson.Result) bool {
			info.Versions = append(info.Versions, k.String())
			return true
		})
	}

	if dist := get("dist"); dist.IsObject() {
		info.Dist = &Dist{
			Tarball:   dist.Get("tarball").String(),
			Shasum:    dist.Get("shasum").String(),
			Integrity: dist.Get("integrity").String(),
		}
	}

	return info, nil
}

// EscapeName returns the registry path form of a package name; the slash of a scoped name is encoded.
func EscapeName(name string) string {
	if strings.HasPrefix(name, "@") {
		return strings.Replace(name, "/", "%2f", 1)
	}
	return name
}

// Spec returns the "name@version" form accepted by package manager CLIs.
func Spec(name, version string) string {
	if version == "" {
		return name
	}
	return name + "@" + version
}
