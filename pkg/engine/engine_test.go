package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/project-copacetic/autofix/pkg/registry"
	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"github.com/project-copacetic/autofix/pkg/yarnlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry serves canned metadata and counts queries per "name@version".
type fakeRegistry struct {
	versions map[string][]string
	calls    map[string]int
	failing  map[string]bool
}

func newFakeRegistry(versions map[string][]string) *fakeRegistry {
	return &fakeRegistry{versions: versions, calls: map[string]int{}, failing: map[string]bool{}}
}

func (f *fakeRegistry) Info(_ context.Context, name, version string) (*registry.PackageInfo, error) {
	spec := registry.Spec(name, version)
	f.calls[spec]++
	if f.failing[name] {
		return nil, fmt.Errorf("yarn info %s: exit status 1", spec)
	}
	versions, ok := f.versions[name]
	if !ok {
		return &registry.PackageInfo{Name: name}, nil
	}
	info := &registry.PackageInfo{Name: name, Versions: versions}
	if version != "" {
		info.Version = version
		info.Dist = &registry.Dist{
			Tarball:   fmt.Sprintf("https://registry.yarnpkg.com/%s/-/%s-%s.tgz", name, name, version),
			Shasum:    "sha-" + version,
			Integrity: "sha512-" + name + "-" + version,
		}
	}
	return info, nil
}

const scenarioLock = `# THIS IS AN AUTOGENERATED FILE. DO NOT EDIT THIS FILE DIRECTLY.
# yarn lockfile v1


lodash@^4.17.0:
  version "4.17.0"
  resolved "https://registry.yarnpkg.com/lodash/-/lodash-4.17.0.tgz#0f7a5d6b1bd3b7bd9bd5f16ed0ef02a9bd0b5d4f"
  integrity sha512-old-lodash==

pkgA@^1.0.0:
  version "1.0.0"
  resolved "https://registry.yarnpkg.com/pkgA/-/pkgA-1.0.0.tgz#aaaa"
  integrity sha512-pkgA==
  dependencies:
    lodash "^4.17.0"

pkgD@^2.0.0:
  version "2.0.0"
  resolved "https://registry.yarnpkg.com/pkgD/-/pkgD-2.0.0.tgz#dddd"
  integrity sha512-pkgD==
  dependencies:
    lodash "^4.17.0"

unrelated@^3.0.0:
  version "3.0.0"
  resolved "https://registry.yarnpkg.com/unrelated/-/unrelated-3.0.0.tgz#cccc"
  integrity sha512-unrelated==
`

const scenarioFixed = `# THIS IS AN AUTOGENERATED FILE. DO NOT EDIT THIS FILE DIRECTLY.
# yarn lockfile v1


lodash@^4.17.21:
  version "4.17.21"
  resolved "https://registry.yarnpkg.com/lodash/-/lodash-4.17.21.tgz#sha-4.17.21"
  integrity sha512-lodash-4.17.21

pkgA@^1.0.0:
  version "1.0.0"
  resolved "https://registry.yarnpkg.com/pkgA/-/pkgA-1.0.0.tgz#aaaa"
  integrity sha512-pkgA==
  dependencies:
    lodash "^4.17.21"

pkgD@^2.0.0:
  version "2.0.0"
  resolved "https://registry.yarnpkg.com/pkgD/-/pkgD-2.0.0.tgz#dddd"
  integrity sha512-pkgD==
  dependencies:
    lodash "^4.17.21"

unrelated@^3.0.0:
  version "3.0.0"
  resolved "https://registry.yarnpkg.com/unrelated/-/unrelated-3.0.0.tgz#cccc"
  integrity sha512-unrelated==
`

func parseLock(t *testing.T, text string) *yarnlock.Lockfile {
	t.Helper()
	l, err := yarnlock.Parse([]byte(text))
	require.NoError(t, err)
	return l
}

func finding(module, target, path string, id int) unversioned.Finding {
	return unversioned.Finding{Module: module, Target: target, Path: unversioned.PathElements(path), ID: id}
}

func lodashRegistry() *fakeRegistry {
	return newFakeRegistry(map[string][]string{
		"lodash": {"4.17.0", "4.17.15", "4.17.21", "5.0.0"},
	})
}

// runIndirect plans and runs both lockfile passes.
func runIndirect(t *testing.T, e *Engine, lock *yarnlock.Lockfile, findings []unversioned.Finding) (*yarnlock.Lockfile, []unversioned.AppliedPatch, error) {
	t.Helper()
	ctx := context.Background()
	groups := e.PlanIndirect(lock, findings)
	afterA, reportA := e.PassA(ctx, lock, groups)
	afterB, reportB := e.PassB(ctx, afterA, groups)
	patches := append(reportA.Patches, reportB.Patches...)
	return afterB, patches, errors.Join(reportA.Err(), reportB.Err())
}

func TestPlanIndirect(t *testing.T) {
	lock := parseLock(t, scenarioLock)
	e := New(lodashRegistry(), YarnClassic())

	groups := e.PlanIndirect(lock, []unversioned.Finding{
		finding("lodash", "^4.17.21", "pkgA > lodash", 1),
		finding("lodash", ">=4.17.19", "pkgA > lodash", 2),
		finding("lodash", "^4.17.21", "pkgA > lodash", 1),
		finding("lodash", "^4.17.21", "pkgD > lodash", 3),
		finding("lodash", "^4.17.21", "pkgA > pkgB > lodash", 4),
		finding("lodash", "^4.17.21", "lodash", 5),
		finding("lodash", "^4.17.21", "pkgA", 6),
	})

	require.Len(t, groups, 2)
	assert.Equal(t, &FixGroup{
		Parent:      "pkgA@^1.0.0",
		Target:      "lodash@^4.17.0",
		Section:     yarnlock.Dependencies,
		Range:       "^4.17.21",
		Ranges:      []string{"^4.17.21", ">=4.17.19"},
		AdvisoryIDs: []int{1, 2},
	}, groups[0])
	assert.Equal(t, "pkgD@^2.0.0", groups[1].Parent)
	assert.Equal(t, "lodash", groups[1].Package())
	assert.Equal(t, []int{3}, groups[1].AdvisoryIDs)
}

func TestScenarioTransitiveFix(t *testing.T) {
	lock := parseLock(t, scenarioLock)
	e := New(lodashRegistry(), YarnClassic())

	out, patches, err := runIndirect(t, e, lock, []unversioned.Finding{
		finding("lodash", "^4.17.21", "pkgA > lodash", 1),
	})
	require.NoError(t, err)

	assert.Equal(t, scenarioFixed, string(out.Bytes()))
	assert.Equal(t, scenarioLock, string(lock.Bytes()), "passes must not modify their input")

	require.Len(t, patches, 3)
	assert.Equal(t, unversioned.AppliedPatch{
		Kind:        unversioned.PatchEntry,
		Package:     "lodash",
		From:        "4.17.0",
		To:          "4.17.21",
		Key:         "lodash@^4.17.21",
		Parent:      "pkgA@^1.0.0",
		AdvisoryIDs: []int{1},
	}, patches[0])
	assert.Equal(t, unversioned.PatchParentRange, patches[1].Kind)
	assert.Equal(t, "pkgA@^1.0.0", patches[1].Parent)
	assert.Equal(t, "^4.17.0", patches[1].From)
	assert.Equal(t, "^4.17.21", patches[1].To)
	assert.Equal(t, "pkgD@^2.0.0", patches[2].Parent, "every reference to the renamed range follows")
}

func TestIdempotent(t *testing.T) {
	lock := parseLock(t, scenarioLock)
	e := New(lodashRegistry(), YarnClassic())
	findings := []unversioned.Finding{
		finding("lodash", "^4.17.21", "pkgA > lodash", 1),
		finding("lodash", "^4.17.21", "pkgD > lodash", 1),
	}

	first, patches, err := runIndirect(t, e, lock, findings)
	require.NoError(t, err)
	require.NotEmpty(t, patches)

	second, patches, err := runIndirect(t, e, first, findings)
	require.NoError(t, err)
	assert.Empty(t, patches)
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestMajorBumpBlocked(t *testing.T) {
	lock := parseLock(t, scenarioLock)
	e := New(lodashRegistry(), YarnClassic())

	out, patches, err := runIndirect(t, e, lock, []unversioned.Finding{
		finding("lodash", ">=5.0.0", "pkgA > lodash", 1),
	})
	require.NoError(t, err)
	assert.Empty(t, patches)
	assert.Equal(t, scenarioLock, string(out.Bytes()))
}

func TestNoDowngrade(t *testing.T) {
	lock := parseLock(t, strings.Replace(scenarioLock, `version "4.17.0"`, `version "4.17.20"`, 1))
	e := New(lodashRegistry(), YarnClassic())

	out, patches, err := runIndirect(t, e, lock, []unversioned.Finding{
		finding("lodash", ">=4.17.15", "pkgA > lodash", 1),
	})
	require.NoError(t, err)
	assert.Empty(t, patches)
	assert.Equal(t, lock.Bytes(), out.Bytes())
}

func TestUnresolvablePathIsSkipped(t *testing.T) {
	lock := parseLock(t, scenarioLock)
	reg := lodashRegistry()
	e := New(reg, YarnClassic())

	out, patches, err := runIndirect(t, e, lock, []unversioned.Finding{
		finding("pkgC", "^1.0.1", "pkgA > pkgB > pkgC", 7),
		finding("lodash", "^4.17.21", "pkgA > lodash", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, scenarioFixed, string(out.Bytes()))
	assert.Len(t, patches, 3)
	assert.Zero(t, reg.calls["pkgC"], "no fix is attempted for an unresolved path")
}

func TestRegistryFailureIsolated(t *testing.T) {
	text := scenarioLock + `
pkgE@^1.0.0:
  version "1.0.0"
  dependencies:
    minimist "^1.2.0"

minimist@^1.2.0:
  version "1.2.0"
`
	lock := parseLock(t, text)
	reg := lodashRegistry()
	reg.failing["minimist"] = true
	e := New(reg, YarnClassic())

	out, patches, err := runIndirect(t, e, lock, []unversioned.Finding{
		finding("minimist", "^1.2.6", "pkgE > minimist", 9),
		finding("lodash", "^4.17.21", "pkgA > lodash", 1),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimist")
	assert.Len(t, patches, 3)

	e2, ok := out.FindByKey("lodash@^4.17.21")
	require.True(t, ok)
	assert.Equal(t, "4.17.21", e2.Version())
	m, ok := out.FindByKey("minimist@^1.2.0")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", m.Version())
}

func TestPassBRequiresPatchedTarget(t *testing.T) {
	lock := parseLock(t, scenarioLock)
	e := New(lodashRegistry(), YarnClassic())
	groups := e.PlanIndirect(lock, []unversioned.Finding{finding("lodash", "^4.17.21", "pkgA > lodash", 1)})

	// PassB alone: nothing locks lodash@^4.17.21, so no parent may point at it
	out, report := e.PassB(context.Background(), lock, groups)
	assert.Empty(t, report.Patches)
	assert.NoError(t, report.Err())
	assert.Equal(t, scenarioLock, string(out.Bytes()))
}

func TestPassAReusesLockedSafeVersion(t *testing.T) {
	text := scenarioLock + `
lodash@^4.17.21:
  version "4.17.21"
  resolved "https://registry.yarnpkg.com/lodash/-/lodash-4.17.21.tgz#sha-4.17.21"
  integrity sha512-lodash-4.17.21
`
	lock := parseLock(t, text)
	e := New(lodashRegistry(), YarnClassic())

	out, patches, err := runIndirect(t, e, lock, []unversioned.Finding{finding("lodash", "^4.17.21", "pkgA > lodash", 1)})
	require.NoError(t, err)

	// the existing entry is reused instead of creating a second lodash@^4.17.21 key
	for _, p := range patches {
		assert.Equal(t, unversioned.PatchParentRange, p.Kind)
	}
	assert.Equal(t, 1, strings.Count(string(out.Bytes()), "lodash@^4.17.21:"))
	assert.Contains(t, string(out.Bytes()), "    lodash \"^4.17.21\"\n")
	assert.NotContains(t, string(out.Bytes()), "    lodash \"^4.17.0\"\n")
}

func TestPassBReusesNewerPatchOfSafeRange(t *testing.T) {
	// yarn locks a caret range at its newest release, so the reused entry sits above the safe version
	text := scenarioLock + `
lodash@^4.17.21:
  version "4.17.23"
  resolved "https://registry.yarnpkg.com/lodash/-/lodash-4.17.23.tgz#sha-4.17.23"
  integrity sha512-lodash-4.17.23
`
	lock := parseLock(t, text)
	e := New(newFakeRegistry(map[string][]string{
		"lodash": {"4.17.0", "4.17.21", "4.17.23"},
	}), YarnClassic())

	out, patches, err := runIndirect(t, e, lock, []unversioned.Finding{finding("lodash", "^4.17.21", "pkgA > lodash", 1)})
	require.NoError(t, err)

	require.Len(t, patches, 2)
	for _, p := range patches {
		assert.Equal(t, unversioned.PatchParentRange, p.Kind)
		assert.Equal(t, "^4.17.0", p.From)
		assert.Equal(t, "^4.17.21", p.To)
		assert.Equal(t, "lodash@^4.17.21", p.Key)
	}

	reused, ok := out.FindByKey("lodash@^4.17.21")
	require.True(t, ok)
	assert.Equal(t, "4.17.23", reused.Version())

	pkgA, ok := out.FindByKey("pkgA@^1.0.0")
	require.True(t, ok)
	dep, ok := pkgA.Dependency(yarnlock.Dependencies, "lodash")
	require.True(t, ok)
	assert.Equal(t, "^4.17.21", dep.Range)
	assert.NotContains(t, string(out.Bytes()), "    lodash \"^4.17.0\"\n")
}

func TestRegistryQueriesMemoized(t *testing.T) {
	lock := parseLock(t, scenarioLock)
	reg := lodashRegistry()
	e := New(registry.NewCachingClient(reg), YarnClassic())

	_, _, err := runIndirect(t, e, lock, []unversioned.Finding{
		finding("lodash", "^4.17.21", "pkgA > lodash", 1),
		finding("lodash", "^4.17.21", "pkgD > lodash", 2),
	})
	require.NoError(t, err)
	for spec, n := range reg.calls {
		assert.Equal(t, 1, n, "%s queried more than once", spec)
	}
	assert.Equal(t, 1, reg.calls["lodash"])
	assert.Equal(t, 1, reg.calls["lodash@4.17.21"])
}

func TestScopedPackages(t *testing.T) {
	text := `"@scope/app@^1.0.0":
  version "1.0.0"
  dependencies:
    "@scope/util" "^2.1.0"

"@scope/util@^2.1.0":
  version "2.1.0"
  resolved "https://registry.yarnpkg.com/@scope/util/-/util-2.1.0.tgz#0000"
  integrity sha512-util-old
`
	lock := parseLock(t, text)
	reg := newFakeRegistry(map[string][]string{"@scope/util": {"2.1.0", "2.1.4"}})
	e := New(reg, YarnClassic())

	out, patches, err := runIndirect(t, e, lock, []unversioned.Finding{finding("@scope/util", ">=2.1.3", "@scope/app > @scope/util", 11)})
	require.NoError(t, err)
	require.Len(t, patches, 2)

	got := string(out.Bytes())
	assert.Contains(t, got, `"@scope/util@^2.1.4":`)
	assert.Contains(t, got, `    "@scope/util" "^2.1.4"`)
	assert.Contains(t, got, `  version "2.1.4"`)
}
