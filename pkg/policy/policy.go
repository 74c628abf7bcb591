// Package policy holds the version safety rules shared by every remediation pass.
package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/project-copacetic/autofix/pkg/types"
	log "github.com/sirupsen/logrus"
)

var (
	// cleanVersionPattern matches the first dotted numeric version inside a range or a quoted field value.
	cleanVersionPattern = regexp.MustCompile(`\d+(?:\.\d+)*(?:-[0-9A-Za-z.-]+)?`)

	// comparatorPattern matches a single npm range comparator such as ^1.2.3, >=2, ~1.x or 1.2.3-beta.1.
	comparatorPattern = regexp.MustCompile(`^(?:[<>]=?|=|~>?|\^)?v?(?:\d+|[xX*])(?:\.(?:\d+|[xX*])){0,2}(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)

	operatorPattern = regexp.MustCompile(`^(?:[<>]=?|=|~>?|\^)$`)
)

// CleanVersion reduces a version or range string to its first plain version, e.g.
// `"^4.17.0"` -> `4.17.0` and `>= 1.2 <2` -> `1.2`. It returns "" when no version is present.
func CleanVersion(s string) string {
	return cleanVersionPattern.FindString(s)
}

// Major returns the leading numeric component of the cleaned version string.
func Major(s string) (uint64, bool) {
	clean := CleanVersion(s)
	if clean == "" {
		return 0, false
	}
	head, _, _ := strings.Cut(clean, ".")
	head, _, _ = strings.Cut(head, "-")
	m, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0, false
	}
	return m, true
}

// IsMajorBump reports whether moving from current to candidate increases the major version.
// A version whose major component cannot be read is treated as a major bump, so it is never applied.
func IsMajorBump(current, candidate string) bool {
	cur, ok := Major(current)
	if !ok {
		log.Debugf("Cannot read major version of %q, treating change to %q as a major bump", current, candidate)
		return true
	}
	cand, ok := Major(candidate)
	if !ok {
		log.Debugf("Cannot read major version of candidate %q, treating it as a major bump", candidate)
		return true
	}
	return cand > cur
}

// IsUpgrade reports whether candidate is strictly greater than current.
func IsUpgrade(current, candidate string) bool {
	cand, err := semver.NewVersion(CleanVersion(candidate))
	if err != nil {
		return false
	}
	cur, err := semver.NewVersion(CleanVersion(current))
	if err != nil {
		return true
	}
	return cand.GreaterThan(cur)
}

// Satisfies reports whether version lies in the range rng. Unparsable input never satisfies.
func Satisfies(rng, version string) bool {
	c, err := semver.NewConstraint(strings.TrimSpace(rng))
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(CleanVersion(version))
	if err != nil {
		return false
	}
	return c.Check(v)
}

// SelectUpgradeVersion returns the lowest version in available that satisfies targetRange.
// Unparsable versions are ignored; equal versions keep the first one seen.
func SelectUpgradeVersion(targetRange string, available []string) (string, bool) {
	c, err := semver.NewConstraint(strings.TrimSpace(targetRange))
	if err != nil {
		log.Debugf("Cannot parse target range %q: %v", targetRange, err)
		return "", false
	}

	var best *semver.Version
	for _, a := range available {
		v, err := semver.NewVersion(a)
		if err != nil {
			continue
		}
		if !c.Check(v) {
			continue
		}
		if best == nil || v.LessThan(best) {
			best = v
		}
	}
	if best == nil {
		return "", false
	}
	return best.Original(), true
}

// ValidateRange checks r against the npm semver range grammar.
func ValidateRange(r string) error {
	if strings.TrimSpace(r) == "" {
		return fmt.Errorf("%w: empty range", types.ErrMalformedRange)
	}
	for _, set := range strings.Split(r, "||") {
		if err := validateComparatorSet(set); err != nil {
			return fmt.Errorf("%w: %q: %v", types.ErrMalformedRange, r, err)
		}
	}
	if _, err := semver.NewConstraint(r); err != nil {
		return fmt.Errorf("%w: %q: %v", types.ErrMalformedRange, r, err)
	}
	return nil
}

func validateComparatorSet(set string) error {
	fields := strings.FieldsFunc(set, func(r rune) bool { return r == ' ' || r == '\t' || r == ',' })
	if len(fields) == 0 {
		return fmt.Errorf("empty comparator set")
	}
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "-":
			// hyphen range: both sides must be plain comparators
			if i == 0 || i == len(fields)-1 {
				return fmt.Errorf("dangling hyphen")
			}
		case operatorPattern.MatchString(f):
			// operator separated from its version by whitespace
			if i == len(fields)-1 {
				return fmt.Errorf("operator %q without version", f)
			}
			i++
			if !comparatorPattern.MatchString(f + fields[i]) {
				return fmt.Errorf("invalid comparator %q", f+" "+fields[i])
			}
		case !comparatorPattern.MatchString(f):
			return fmt.Errorf("invalid comparator %q", f)
		}
	}
	return nil
}
