package vex

import (
	"fmt"

	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"github.com/project-copacetic/autofix/pkg/utils"
)

type Vex interface {
	CreateVEXDocument(patches []unversioned.AppliedPatch, product string) (string, error)
}

func TryOutputVexDocument(patches []unversioned.AppliedPatch, product, format, file string) error {
	var doc string
	var err error

	switch format {
	case "openvex":
		ov := &OpenVex{}
		doc, err = ov.CreateVEXDocument(patches, product)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported output format %s specified", format)
	}
	return utils.WriteFile("", file, []byte(doc), 0o600)
}
