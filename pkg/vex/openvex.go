// Package vex contains logic for generating VEX (Vulnerability Exploitability eXchange) documents.
package vex

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openvex/go-vex/pkg/vex"
	"github.com/project-copacetic/autofix/pkg/policy"
	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	log "github.com/sirupsen/logrus"
)

// test seams for time and id generation.
var (
	now        = time.Now
	generateID = func(doc *vex.VEX) (string, error) { return doc.GenerateCanonicalID() }
)

type OpenVex struct{}

// PackageURL returns the npm purl of name at version. Scoped names keep their slash and
// escape the leading @.
func PackageURL(name, version string) string {
	if strings.HasPrefix(name, "@") {
		name = "%40" + name[1:]
	}
	purl := "pkg:npm/" + name
	if version != "" {
		purl += "@" + version
	}
	return purl
}

// CreateVEXDocument returns an OpenVEX document stating every advisory resolved by patches as
// fixed in product. Patches rewriting only a parent's dependency range carry no new version of
// their own and are left out.
func (o *OpenVex) CreateVEXDocument(patches []unversioned.AppliedPatch, product string) (string, error) {
	t := now()
	doc := &vex.VEX{Metadata: vex.Metadata{
		Context: vex.Context,
		Author:  "autofix",
		Tooling: "autofix",
		Version: 1,
	}}
	doc.Timestamp = &t

	author := os.Getenv("AUTOFIX_VEX_AUTHOR")
	if author != "" {
		doc.Author = author
	}

	id, err := generateID(doc)
	if err != nil {
		return "", err
	}
	doc.ID = id

	addFix := func(vulnID string, subComponent vex.Subcomponent) {
		for i := range doc.Statements {
			if doc.Statements[i].Vulnerability.ID != vulnID {
				continue
			}
			for _, existing := range doc.Statements[i].Products[0].Subcomponents {
				if existing.ID == subComponent.ID {
					log.Debugf("duplicate subcomponent %s ignored", subComponent.ID)
					return
				}
			}
			doc.Statements[i].Products[0].Subcomponents = append(doc.Statements[i].Products[0].Subcomponents, subComponent)
			return
		}
		doc.Statements = append(doc.Statements, vex.Statement{
			Vulnerability: vex.Vulnerability{ID: vulnID},
			Products: []vex.Product{{
				Component:     vex.Component{ID: product},
				Subcomponents: []vex.Subcomponent{subComponent},
			}},
			Status: "fixed",
		})
	}

	for _, p := range patches {
		if p.Kind == unversioned.PatchParentRange {
			continue
		}
		fixed := policy.CleanVersion(p.To)
		if fixed == "" || fixed == policy.CleanVersion(p.From) {
			log.Debugf("skipping %s: no version change to report", p.Package)
			continue
		}
		if len(p.AdvisoryIDs) == 0 {
			log.Debugf("skipping %s: no advisory id for VEX", p.Package)
			continue
		}
		subComponent := vex.Subcomponent{Component: vex.Component{ID: PackageURL(p.Package, fixed)}}
		for _, advisory := range p.AdvisoryIDs {
			addFix(unversioned.AdvisoryURL+strconv.Itoa(advisory), subComponent)
		}
	}

	var buf bytes.Buffer
	err = doc.ToJSON(&buf)
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}
