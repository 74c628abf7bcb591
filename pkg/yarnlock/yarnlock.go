// Package yarnlock parses and edits classic (v1) yarn lockfiles.
//
// The parsed model keeps the original lines of the file together with the line span of every
// value it exposes. Edits go through the Lockfile so that the parsed value and the rendered line
// change together; lines that are never edited are rendered byte for byte as they were read.
package yarnlock

import (
	"errors"
	"fmt"
	"strings"
)

// Section names a dependency mapping inside a lockfile entry.
type Section string

const (
	Dependencies         Section = "dependencies"
	OptionalDependencies Section = "optionalDependencies"
	PeerDependencies     Section = "peerDependencies"
)

var knownSections = map[string]Section{
	string(Dependencies):         Dependencies,
	string(OptionalDependencies): OptionalDependencies,
	string(PeerDependencies):     PeerDependencies,
}

// ErrUnsupportedDialect is returned for lockfiles that are not in the classic v1 text format.
var ErrUnsupportedDialect = errors.New("unsupported lockfile dialect, only the classic yarn v1 format is supported")

// Dependency is one `name "range"` line of a dependency section.
type Dependency struct {
	Name  string
	Range string

	line        int
	rangeQuoted bool
}

type alias struct {
	text   string
	quoted bool
}

type field struct {
	value  string
	line   int
	quoted bool
}

// Entry is one block of the lockfile: a resolved package version and the ranges it requires.
type Entry struct {
	aliases []alias
	header  int
	start   int
	end     int

	fields map[string]*field
	deps   map[Section][]Dependency
}

// Key returns the composite key of the entry, its aliases joined by ", ".
func (e *Entry) Key() string {
	texts := make([]string, len(e.aliases))
	for i, a := range e.aliases {
		texts[i] = a.text
	}
	return strings.Join(texts, ", ")
}

// Aliases returns every "name@range" key that resolves to this entry.
func (e *Entry) Aliases() []string {
	out := make([]string, len(e.aliases))
	for i, a := range e.aliases {
		out[i] = a.text
	}
	return out
}

// HasAlias reports whether key is one of the entry's aliases.
func (e *Entry) HasAlias(key string) bool {
	for _, a := range e.aliases {
		if a.text == key {
			return true
		}
	}
	return false
}

// Name returns the package name shared by the entry's aliases.
func (e *Entry) Name() string {
	if len(e.aliases) == 0 {
		return ""
	}
	return PackageName(e.aliases[0].text)
}

func (e *Entry) fieldValue(name string) string {
	if f, ok := e.fields[name]; ok {
		return f.value
	}
	return ""
}

// Version returns the declared version of the entry.
func (e *Entry) Version() string { return e.fieldValue("version") }

// Resolved returns the resolved tarball URL and content hash ("<url>#<hash>").
func (e *Entry) Resolved() string { return e.fieldValue("resolved") }

// Integrity returns the subresource integrity hash.
func (e *Entry) Integrity() string { return e.fieldValue("integrity") }

// Field returns the value of any scalar field of the entry.
func (e *Entry) Field(name string) (string, bool) {
	f, ok := e.fields[name]
	if !ok {
		return "", false
	}
	return f.value, true
}

// Dependencies returns a copy of the dependency lines of the given section in file order.
func (e *Entry) Dependencies(s Section) []Dependency {
	return append([]Dependency(nil), e.deps[s]...)
}

// Dependency looks up name in the given section.
func (e *Entry) Dependency(s Section, name string) (Dependency, bool) {
	for _, d := range e.deps[s] {
		if d.Name == name {
			return d, true
		}
	}
	return Dependency{}, false
}

// Lockfile is a parsed classic yarn lockfile.
type Lockfile struct {
	lines   []string
	entries []*Entry
}

// Entries returns the entries in file order.
func (l *Lockfile) Entries() []*Entry {
	return l.entries
}

// FindByPrefix returns every entry with an alias starting with "<name>@", in file order.
func (l *Lockfile) FindByPrefix(name string) []*Entry {
	prefix := name + "@"
	var out []*Entry
	for _, e := range l.entries {
		for _, a := range e.aliases {
			if strings.HasPrefix(a.text, prefix) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// FindByKey returns the entry whose composite key or one of whose aliases equals key exactly.
func (l *Lockfile) FindByKey(key string) (*Entry, bool) {
	for _, e := range l.entries {
		if e.Key() == key || e.HasAlias(key) {
			return e, true
		}
	}
	return nil, false
}

// Bytes renders the lockfile.
func (l *Lockfile) Bytes() []byte {
	return []byte(strings.Join(l.lines, "\n"))
}

// Line returns the rendered text of the line at index i without its line terminator.
func (l *Lockfile) Line(i int) string {
	return strings.TrimSuffix(l.lines[i], "\r")
}

// Clone returns a deep copy that can be edited without affecting l.
func (l *Lockfile) Clone() *Lockfile {
	out := &Lockfile{
		lines:   append([]string(nil), l.lines...),
		entries: make([]*Entry, len(l.entries)),
	}
	for i, e := range l.entries {
		c := &Entry{
			aliases: append([]alias(nil), e.aliases...),
			header:  e.header,
			start:   e.start,
			end:     e.end,
			fields:  make(map[string]*field, len(e.fields)),
			deps:    make(map[Section][]Dependency, len(e.deps)),
		}
		for k, f := range e.fields {
			fc := *f
			c.fields[k] = &fc
		}
		for s, d := range e.deps {
			c.deps[s] = append([]Dependency(nil), d...)
		}
		out.entries[i] = c
	}
	return out
}

// EntryUpdate lists the replacement values for an entry. Empty values leave the field untouched.
type EntryUpdate struct {
	OldAlias  string
	NewAlias  string
	Version   string
	Resolved  string
	Integrity string
}

// UpdateEntry applies u to e and re-renders the affected lines. Fields that are not present in the
// entry are not added. It reports whether any line changed.
func (l *Lockfile) UpdateEntry(e *Entry, u EntryUpdate) bool {
	changed := false
	if u.OldAlias != "" && u.NewAlias != "" && u.OldAlias != u.NewAlias {
		if l.replaceAlias(e, u.OldAlias, u.NewAlias) {
			changed = true
		}
	}
	for name, value := range map[string]string{
		"version":   u.Version,
		"resolved":  u.Resolved,
		"integrity": u.Integrity,
	} {
		if value == "" {
			continue
		}
		if l.setField(e, name, value) {
			changed = true
		}
	}
	return changed
}

// SetDependencyRange rewrites the range of dependency name in section s of e.
func (l *Lockfile) SetDependencyRange(e *Entry, s Section, name, newRange string) bool {
	deps := e.deps[s]
	for i := range deps {
		if deps[i].Name != name {
			continue
		}
		if deps[i].Range == newRange {
			return false
		}
		deps[i].Range = newRange
		l.renderDependency(deps[i])
		return true
	}
	return false
}

func (l *Lockfile) replaceAlias(e *Entry, oldAlias, newAlias string) bool {
	idx := -1
	for i, a := range e.aliases {
		if a.text == oldAlias {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	if e.HasAlias(newAlias) {
		e.aliases = append(e.aliases[:idx:idx], e.aliases[idx+1:]...)
	} else {
		e.aliases[idx].text = newAlias
	}
	l.renderHeader(e)
	return true
}

func (l *Lockfile) setField(e *Entry, name, value string) bool {
	f, ok := e.fields[name]
	if !ok || f.value == value {
		return false
	}
	f.value = value
	raw := l.lines[f.line]
	line, cr := splitCR(raw)
	indent := leadingSpace(line)
	l.lines[f.line] = indent + name + " " + quoteIf(value, f.quoted) + cr
	return true
}

func (l *Lockfile) renderHeader(e *Entry) {
	_, cr := splitCR(l.lines[e.header])
	parts := make([]string, len(e.aliases))
	for i, a := range e.aliases {
		parts[i] = quoteIf(a.text, a.quoted)
	}
	l.lines[e.header] = strings.Join(parts, ", ") + ":" + cr
}

func (l *Lockfile) renderDependency(d Dependency) {
	line, cr := splitCR(l.lines[d.line])
	indent := leadingSpace(line)
	nameToken, _ := splitToken(strings.TrimLeft(line, " \t"))
	l.lines[d.line] = indent + nameToken + " " + quoteIf(d.Range, d.rangeQuoted) + cr
}

// Parse reads a classic yarn lockfile.
func Parse(data []byte) (*Lockfile, error) {
	text := string(data)
	if strings.Contains(text, "__metadata:") {
		return nil, ErrUnsupportedDialect
	}

	l := &Lockfile{lines: strings.Split(text, "\n")}

	var cur *Entry
	var section Section
	fieldIndent := -1
	closeEntry := func(end int) {
		if cur != nil {
			cur.end = end
			l.entries = append(l.entries, cur)
		}
		cur = nil
		section = ""
		fieldIndent = -1
	}

	for i, raw := range l.lines {
		line, _ := splitCR(raw)
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			closeEntry(i)
			continue
		case strings.HasPrefix(trimmed, "#"):
			continue
		}

		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent == 0 {
			closeEntry(i)
			if !strings.HasSuffix(trimmed, ":") {
				return nil, fmt.Errorf("line %d: expected an entry header ending in ':', got %q", i+1, trimmed)
			}
			aliases, err := parseHeader(strings.TrimSuffix(trimmed, ":"))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			cur = &Entry{
				aliases: aliases,
				header:  i,
				start:   i,
				fields:  make(map[string]*field),
				deps:    make(map[Section][]Dependency),
			}
			continue
		}

		if cur == nil {
			return nil, fmt.Errorf("line %d: indented line outside of an entry", i+1)
		}
		if fieldIndent < 0 {
			fieldIndent = indent
		}

		if indent <= fieldIndent {
			section = ""
			if strings.HasSuffix(trimmed, ":") && !strings.Contains(trimmed, " ") {
				// unknown sub-sections are kept verbatim but not modelled
				section = knownSections[strings.TrimSuffix(trimmed, ":")]
				if section == "" {
					section = Section("-")
				}
				continue
			}
			name, rest := splitToken(trimmed)
			value, quoted := unquote(strings.TrimSpace(rest))
			cur.fields[unquoteName(name)] = &field{value: value, line: i, quoted: quoted}
			continue
		}

		if _, ok := knownSections[string(section)]; !ok {
			continue
		}
		name, rest := splitToken(trimmed)
		value, quoted := unquote(strings.TrimSpace(rest))
		cur.deps[section] = append(cur.deps[section], Dependency{
			Name:        unquoteName(name),
			Range:       value,
			line:        i,
			rangeQuoted: quoted,
		})
	}
	closeEntry(len(l.lines))

	return l, nil
}

func parseHeader(s string) ([]alias, error) {
	var out []alias
	for _, part := range splitHeader(s) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		text, quoted := unquote(part)
		if !strings.Contains(strings.TrimPrefix(text, "@"), "@") {
			return nil, fmt.Errorf("malformed entry key %q", text)
		}
		out = append(out, alias{text: text, quoted: quoted})
	}
	if len(out) == 0 {
		return nil, errors.New("entry header without keys")
	}
	return out, nil
}

// splitHeader splits a header on commas that are not inside quotes.
func splitHeader(s string) []string {
	var out []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// splitToken returns the first token of s (a quoted string or a run of non-space characters)
// and the remainder.
func splitToken(s string) (string, string) {
	if strings.HasPrefix(s, `"`) {
		if end := strings.Index(s[1:], `"`); end >= 0 {
			return s[:end+2], s[end+2:]
		}
	}
	if idx := strings.IndexAny(s, " \t"); idx >= 0 {
		return s[:idx], s[idx:]
	}
	return s, ""
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1], true
	}
	return s, false
}

func unquoteName(s string) string {
	v, _ := unquote(s)
	return v
}

func quoteIf(s string, quoted bool) string {
	if quoted {
		return `"` + s + `"`
	}
	return s
}

func splitCR(s string) (string, string) {
	if strings.HasSuffix(s, "\r") {
		return s[:len(s)-1], "\r"
	}
	return s, ""
}

func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

// SplitKey splits a "name@range" key into the package name and the range. Scoped names
// ("@scope/name@range") keep their leading "@".
func SplitKey(key string) (string, string) {
	if strings.HasPrefix(key, "@") {
		if idx := strings.Index(key[1:], "@"); idx >= 0 {
			return key[:idx+1], key[idx+2:]
		}
		return key, ""
	}
	name, rng, _ := strings.Cut(key, "@")
	return name, rng
}

// PackageName returns the package name of a "name@range" key.
func PackageName(key string) string {
	name, _ := SplitKey(key)
	return name
}

// Key joins a package name and a range into a lockfile key.
func Key(name, rng string) string {
	return name + "@" + rng
}
