// Package manifest reads and patches the dependency sections of a package.json.
package manifest

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Sections are the manifest sections whose entries are patched, in patch order.
var Sections = []string{"dependencies", "resolutions", "devDependencies"}

// Dependency is one name to range declaration of a manifest section.
type Dependency struct {
	Section string
	Name    string
	Range   string
}

// Manifest is a parsed package.json.
type Manifest struct {
	data []byte
	deps []Dependency
}

// Parse reads the dependency sections of a package.json document, keeping declaration order.
func Parse(data []byte) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("manifest is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("manifest is not a JSON object")
	}

	m := &Manifest{data: data}
	for _, section := range Sections {
		s := doc.Get(section)
		if !s.Exists() {
			continue
		}
		if !s.IsObject() {
			return nil, fmt.Errorf("manifest section %q is not an object", section)
		}
		s.ForEach(func(k, v gjson.Result) bool {
			m.deps = append(m.deps, Dependency{Section: section, Name: k.String(), Range: v.String()})
			return true
		})
	}
	return m, nil
}

// Bytes returns the document the manifest was parsed from.
func (m *Manifest) Bytes() []byte {
	return m.data
}

// Name returns the package name declared by the manifest.
func (m *Manifest) Name() string {
	return gjson.GetBytes(m.data, "name").String()
}

// Version returns the package version declared by the manifest.
func (m *Manifest) Version() string {
	return gjson.GetBytes(m.data, "version").String()
}

// Dependencies returns every declaration of the patched sections.
func (m *Manifest) Dependencies() []Dependency {
	return append([]Dependency(nil), m.deps...)
}

// Lookup returns the range declared for name in section.
func (m *Manifest) Lookup(section, name string) (string, bool) {
	for _, d := range m.deps {
		if d.Section == section && d.Name == name {
			return d.Range, true
		}
	}
	return "", false
}

// Change sets the declared range of Name in Section.
type Change struct {
	Section string
	Name    string
	Range   string
}

// Apply writes changes into a package.json document. Only the changed values are rewritten;
// every other key keeps its position.
func Apply(data []byte, changes []Change) ([]byte, error) {
	out := data
	for _, c := range changes {
		var err error
		path := gjson.Escape(c.Section) + "." + gjson.Escape(c.Name)
		out, err = sjson.SetBytes(out, path, c.Range)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to set %s in %s", c.Name, c.Section)
		}
	}
	return out, nil
}
