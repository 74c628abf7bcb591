package report

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"github.com/tidwall/gjson"
)

// YarnAuditParser reads the line-delimited output of `yarn audit --json`.
type YarnAuditParser struct{}

func (p *YarnAuditParser) Parse(file string) (unversioned.FixFeed, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var advisories []advisory
	records := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return nil, &ErrorUnsupported{fmt.Errorf("%s: not line-delimited JSON", file)}
		}
		typ := gjson.GetBytes(line, "type")
		if !typ.Exists() {
			return nil, &ErrorUnsupported{fmt.Errorf("%s: record without a type", file)}
		}
		records++
		if typ.String() != "auditAdvisory" {
			continue
		}

		rec := gjson.GetBytes(line, "data")
		advisories = append(advisories, advisory{
			ID:      int(rec.Get("resolution.id").Int()),
			Module:  rec.Get("advisory.module_name").String(),
			Patched: rec.Get("advisory.patched_versions").String(),
			Path:    rec.Get("resolution.path").String(),
			Flags: flags{
				Dev:      rec.Get("resolution.dev").Bool(),
				Optional: rec.Get("resolution.optional").Bool(),
				Bundled:  rec.Get("resolution.bundled").Bool(),
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if records == 0 {
		return nil, &ErrorUnsupported{fmt.Errorf("%s: no yarn audit records", file)}
	}

	return buildFeed(advisories), nil
}

// YarnTableParser reads the table printed by `yarn audit --no-color`.
type YarnTableParser struct{}

func (p *YarnTableParser) Parse(file string) (unversioned.FixFeed, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var tables []map[string]string
	var cur map[string]string
	var prevKey string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "┌─") && strings.HasSuffix(line, "─┐"):
			cur = map[string]string{}
			prevKey = ""
		case strings.HasPrefix(line, "│ ") && cur != nil:
			cells := strings.Split(line, "│")
			if len(cells) < 3 {
				continue
			}
			k, v := strings.TrimSpace(cells[1]), strings.TrimSpace(cells[2])
			if k != "" {
				cur[k] = v
				prevKey = k
			} else if prevKey != "" {
				cur[prevKey] += " " + v
			}
		case strings.HasPrefix(line, "└─") && strings.HasSuffix(line, "─┘") && cur != nil:
			tables = append(tables, cur)
			cur = nil
		}
	}
	if len(tables) == 0 {
		return nil, &ErrorUnsupported{fmt.Errorf("%s: no yarn audit table", file)}
	}

	var advisories []advisory
	for _, t := range tables {
		module, ok := t["Package"]
		if !ok {
			// summary tables carry no package
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(t["More info"], unversioned.AdvisoryURL))
		if err != nil {
			return nil, fmt.Errorf("%s: advisory %s: cannot read id from %q", file, module, t["More info"])
		}
		advisories = append(advisories, advisory{
			ID:      id,
			Module:  module,
			Patched: t["Patched in"],
			Path:    t["Path"],
		})
	}
	return buildFeed(advisories), nil
}
