package report

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"github.com/tidwall/gjson"
)

// NPMAuditParser reads the `advisories` report of `npm audit --json` and `yarn npm audit --json`.
type NPMAuditParser struct{}

func (p *NPMAuditParser) Parse(file string) (unversioned.FixFeed, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, &ErrorUnsupported{fmt.Errorf("%s: not a JSON document", file)}
	}
	advs := gjson.GetBytes(data, "advisories")
	if !advs.IsObject() {
		return nil, &ErrorUnsupported{fmt.Errorf("%s: no advisories object", file)}
	}

	type entry struct {
		id  int
		adv gjson.Result
	}
	var entries []entry
	var parseErr error
	advs.ForEach(func(k, v gjson.Result) bool {
		id, err := strconv.Atoi(k.String())
		if err != nil {
			if id = int(v.Get("id").Int()); id == 0 {
				parseErr = fmt.Errorf("%s: advisory key %q is not an id", file, k.String())
				return false
			}
		}
		entries = append(entries, entry{id: id, adv: v})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	var advisories []advisory
	for _, e := range entries {
		module := e.adv.Get("module_name").String()
		patched := e.adv.Get("patched_versions").String()

		seen := map[string]bool{}
		for _, f := range e.adv.Get("findings").Array() {
			for _, path := range f.Get("paths").Array() {
				if seen[path.String()] {
					continue
				}
				seen[path.String()] = true
				advisories = append(advisories, advisory{ID: e.id, Module: module, Patched: patched, Path: path.String()})
			}
		}
		if len(seen) == 0 {
			// no path information: the advisory is reported against the module itself
			advisories = append(advisories, advisory{ID: e.id, Module: module, Patched: patched, Path: module})
		}
	}

	return buildFeed(advisories), nil
}
