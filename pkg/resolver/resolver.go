// Package resolver walks advisory dependency paths through a yarn lockfile.
package resolver

import (
	"github.com/project-copacetic/autofix/pkg/yarnlock"
	log "github.com/sirupsen/logrus"
)

// Sections lists, in lookup order, the dependency sections consulted when looking for the next
// package of a path. First applies to the direct dependency, Later to every following hop.
type Sections struct {
	First []yarnlock.Section
	Later []yarnlock.Section
}

// DefaultSections looks at runtime dependencies and falls back to optional dependencies on every hop.
func DefaultSections() Sections {
	return Sections{
		First: []yarnlock.Section{yarnlock.Dependencies, yarnlock.OptionalDependencies},
		Later: []yarnlock.Section{yarnlock.Dependencies, yarnlock.OptionalDependencies},
	}
}

// Step links a parent entry to the "name@range" key it declares for the next package of the path.
type Step struct {
	Parent  string
	Child   string
	Section yarnlock.Section
}

// Resolution is the result of walking one path. When Found is false, FailedHop is the index of
// the path element whose successor could not be located.
type Resolution struct {
	Found     bool
	Steps     []Step
	FailedHop int
}

// Last returns the step that declares the vulnerable package.
func (r Resolution) Last() (Step, bool) {
	if !r.Found || len(r.Steps) == 0 {
		return Step{}, false
	}
	return r.Steps[len(r.Steps)-1], true
}

// Resolve walks path, a chain of package names from a direct dependency to the vulnerable package.
// The vulnerable package itself is never looked up; only its ancestors are.
func Resolve(lock *yarnlock.Lockfile, path []string, sections Sections) Resolution {
	if len(path) < 2 {
		return Resolution{FailedHop: 0}
	}

	steps := make([]Step, 0, len(path)-1)
	for hop := 0; hop < len(path)-1; hop++ {
		next := path[hop+1]

		var step Step
		var ok bool
		if hop == 0 {
			step, ok = firstHop(lock, path[0], next, sections.First)
		} else {
			step, ok = laterHop(lock, steps[hop-1].Child, next, sections.Later)
		}
		if !ok {
			log.Debugf("Path %v: %s not found below %s", path, next, path[hop])
			return Resolution{Steps: steps, FailedHop: hop}
		}
		steps = append(steps, step)
	}

	return Resolution{Found: true, Steps: steps}
}

func firstHop(lock *yarnlock.Lockfile, name, next string, sections []yarnlock.Section) (Step, bool) {
	for _, e := range lock.FindByPrefix(name) {
		if step, ok := lookup(e, next, sections); ok {
			return step, true
		}
	}
	return Step{}, false
}

func laterHop(lock *yarnlock.Lockfile, key, next string, sections []yarnlock.Section) (Step, bool) {
	e, ok := lock.FindByKey(key)
	if !ok {
		return Step{}, false
	}
	return lookup(e, next, sections)
}

func lookup(e *yarnlock.Entry, next string, sections []yarnlock.Section) (Step, bool) {
	for _, s := range sections {
		if d, ok := e.Dependency(s, next); ok {
			return Step{
				Parent:  e.Key(),
				Child:   yarnlock.Key(d.Name, d.Range),
				Section: s,
			}, true
		}
	}
	return Step{}, false
}
