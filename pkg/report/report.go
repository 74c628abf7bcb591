package report

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"github.com/project-copacetic/autofix/pkg/types/v1alpha1"
	log "github.com/sirupsen/logrus"
)

const (
	FormatFixFeed   = "fixfeed"
	FormatYarnAudit = "yarn-audit"
	FormatYarnTable = "yarn-table"
	FormatNPMAudit  = "npm-audit"

	// noPatchRange is the patched range npm reports for advisories without a fixed release.
	noPatchRange = "<0.0.0"
)

type ErrorUnsupported struct {
	err error
}

func (e *ErrorUnsupported) Error() string { return e.err.Error() }

// FeedParser turns an audit report file into a fix feed.
type FeedParser interface {
	Parse(string) (unversioned.FixFeed, error)
}

var parsers = map[string]FeedParser{
	FormatFixFeed:   &FixFeedParser{},
	FormatYarnAudit: &YarnAuditParser{},
	FormatYarnTable: &YarnTableParser{},
	FormatNPMAudit:  &NPMAuditParser{},
}

// TryParseFeed reads file with the parser of the given format, or with every known parser in turn
// when format is empty. Advisories listed in ignore are dropped from the feed.
func TryParseFeed(file, format string, ignore []int) (unversioned.FixFeed, error) {
	var feed unversioned.FixFeed
	var err error
	if format != "" {
		p, ok := parsers[format]
		if !ok {
			return nil, fmt.Errorf("unknown feed format %q", format)
		}
		feed, err = p.Parse(file)
	} else {
		feed, err = defaultParseFeed(file)
	}
	if err != nil {
		return nil, err
	}
	return filterIgnored(feed, ignore), nil
}

func defaultParseFeed(file string) (unversioned.FixFeed, error) {
	allParsers := []FeedParser{
		&FixFeedParser{},
		&NPMAuditParser{},
		&YarnAuditParser{},
		&YarnTableParser{},
	}
	for _, parser := range allParsers {
		feed, err := parser.Parse(file)
		if err == nil {
			return feed, nil
		} else if _, ok := err.(*ErrorUnsupported); ok {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%s is not a supported audit report format", file)
}

// FixFeedParser reads a fix feed, either as a bare JSON array of actions or as a versioned document.
type FixFeedParser struct{}

func (p *FixFeedParser) Parse(file string) (unversioned.FixFeed, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var feed unversioned.FixFeed
		if err := json.Unmarshal(data, &feed); err != nil {
			return nil, &ErrorUnsupported{err}
		}
		for i := range feed {
			if feed[i].Action == "" {
				feed[i].Action = unversioned.ActionUpdate
			}
		}
		return feed, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ErrorUnsupported{err}
	}
	return convertToUnversionedAPI(data, m)
}

func convertToUnversionedAPI(data []byte, m map[string]interface{}) (unversioned.FixFeed, error) {
	switch v := m["apiVersion"].(type) {
	case string:
		if v == v1alpha1.APIVersion {
			return v1alpha1.ConvertV1alpha1FixFeedToUnversionedFixFeed(data)
		}
		return nil, &ErrorUnsupported{fmt.Errorf("unsupported apiVersion: %s", v)}
	default:
		return nil, &ErrorUnsupported{fmt.Errorf("unsupported apiVersion type: %v", v)}
	}
}

// advisory is one (advisory, dependency path) pair read from an audit report.
type advisory struct {
	ID      int
	Module  string
	Patched string
	Path    string
	Flags   flags
}

// flags are the resolution attributes yarn audit reports for a path.
type flags struct {
	Dev, Optional, Bundled bool
}

// buildFeed groups advisories by (module, patched range) in first-seen order.
func buildFeed(advisories []advisory) unversioned.FixFeed {
	type key struct{ module, patched string }

	var feed unversioned.FixFeed
	index := map[key]int{}
	for _, a := range advisories {
		target := strings.TrimSpace(a.Patched)
		if target == "" || target == noPatchRange {
			target = unversioned.NoPatchAvailable
		}
		k := key{module: a.Module, patched: target}
		i, ok := index[k]
		if !ok {
			i = len(feed)
			index[k] = i
			feed = append(feed, unversioned.FixAction{
				Action: unversioned.ActionUpdate,
				Module: a.Module,
				Target: target,
			})
		}
		feed[i].Resolves = append(feed[i].Resolves, unversioned.Resolve{
			ID:       a.ID,
			Path:     a.Path,
			Dev:      a.Flags.Dev,
			Optional: a.Flags.Optional,
			Bundled:  a.Flags.Bundled,
		})
	}
	return feed
}

func filterIgnored(feed unversioned.FixFeed, ignore []int) unversioned.FixFeed {
	if len(ignore) == 0 {
		return feed
	}
	var out unversioned.FixFeed
	for _, a := range feed {
		var resolves []unversioned.Resolve
		for _, r := range a.Resolves {
			if slices.Contains(ignore, r.ID) {
				log.Infof("Ignoring advisory %d for %s", r.ID, a.Module)
				continue
			}
			resolves = append(resolves, r)
		}
		if len(resolves) == 0 {
			continue
		}
		a.Resolves = resolves
		out = append(out, a)
	}
	return out
}
