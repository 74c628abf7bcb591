package bulk

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/project-copacetic/autofix/pkg/types"
	"github.com/project-copacetic/autofix/pkg/utils"
	log "github.com/sirupsen/logrus"
)

// FindRepos returns the repository directories selected by spec.
func FindRepos(spec *RepoSpec) ([]string, error) {
	log.Infof("Discovering repositories for '%s' with strategy: %s", spec.Name, strategyName(spec))

	switch spec.Discover.Strategy {
	case "", StrategyPath:
		return []string{spec.Path}, nil
	case StrategyList:
		return findReposByList(spec), nil
	case StrategyPattern:
		return findReposByPattern(spec)
	}

	return nil, fmt.Errorf("internal error: unhandled strategy '%s'", spec.Discover.Strategy)
}

func strategyName(spec *RepoSpec) string {
	if spec.Discover.Strategy == "" {
		return StrategyPath
	}
	return spec.Discover.Strategy
}

func findReposByList(spec *RepoSpec) []string {
	dirs := make([]string, 0, len(spec.Discover.List))
	for _, rel := range excludeDirs(spec.Discover.List, spec.Discover.Exclude) {
		dirs = append(dirs, filepath.Join(spec.Path, rel))
	}
	log.Debugf("Using explicit list of directories for '%s': %v", spec.Name, dirs)
	return dirs
}

func findReposByPattern(spec *RepoSpec) ([]string, error) {
	candidates, err := listYarnProjects(spec.Path)
	if err != nil {
		return nil, err
	}

	matching := []string{}
	for _, rel := range candidates {
		if spec.Discover.compiledPattern.MatchString(filepath.ToSlash(rel)) {
			matching = append(matching, rel)
		}
	}

	matching = excludeDirs(matching, spec.Discover.Exclude)
	slices.Sort(matching)

	if spec.Discover.MaxRepos > 0 && len(matching) > spec.Discover.MaxRepos {
		matching = matching[:spec.Discover.MaxRepos]
	}

	dirs := make([]string, len(matching))
	for i, rel := range matching {
		dirs[i] = filepath.Join(spec.Path, rel)
	}
	if len(dirs) == 0 {
		log.Warnf("No yarn project below '%s' matches %q", spec.Path, spec.Discover.Pattern)
	}
	log.Debugf("Found repositories for '%s' by pattern: %v", spec.Name, dirs)
	return dirs, nil
}

// listYarnProjects returns the directories below root, relative to it, holding both a manifest and a
// classic lockfile. node_modules and hidden directories are not entered.
var listYarnProjects = func(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (d.Name() == "node_modules" || strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if utils.IsNonEmptyFile(path, types.DefaultManifestFile) && utils.IsNonEmptyFile(path, types.DefaultLockfile) {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			dirs = append(dirs, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list yarn projects below '%s': %w", root, err)
	}
	return dirs, nil
}

func excludeDirs(dirs, exclusions []string) []string {
	if len(exclusions) == 0 {
		return dirs
	}

	exclusionSet := make(map[string]struct{}, len(exclusions))
	for _, ex := range exclusions {
		exclusionSet[filepath.Clean(ex)] = struct{}{}
	}

	result := []string{}
	for _, dir := range dirs {
		if _, found := exclusionSet[filepath.Clean(dir)]; !found {
			result = append(result, dir)
		}
	}
	return result
}
