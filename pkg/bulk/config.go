package bulk

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

const (
	APIVersion = "autofix.project-copacetic.io/v1alpha1"
	Kind       = "RemediationConfig"

	StrategyPath    = "path"
	StrategyList    = "list"
	StrategyPattern = "pattern"

	// DefaultFeed is the audit report read from each repository when a spec names none.
	DefaultFeed = "yarn-audit.json"
)

type RemediationConfig struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Repos      []RepoSpec `yaml:"repos"`
}

type RepoSpec struct {
	Name     string           `yaml:"name"`
	Path     string           `yaml:"path"`
	Feed     string           `yaml:"feed,omitempty"`
	Format   string           `yaml:"format,omitempty"`
	Ignore   []int            `yaml:"ignore,omitempty"`
	Discover DiscoverStrategy `yaml:"discover,omitempty"`
}

// DiscoverStrategy selects the repositories below a spec's path.
type DiscoverStrategy struct {
	Strategy string   `yaml:"strategy"`
	Pattern  string   `yaml:"pattern,omitempty"`
	MaxRepos int      `yaml:"maxRepos,omitempty"`
	List     []string `yaml:"list,omitempty"`
	Exclude  []string `yaml:"exclude,omitempty"`

	compiledPattern *regexp.Regexp
}

func (d *DiscoverStrategy) UnmarshalYAML(value *yaml.Node) error {
	type rawDiscoverStrategy DiscoverStrategy
	raw := rawDiscoverStrategy{}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	switch raw.Strategy {
	case StrategyList:
		if len(raw.List) == 0 {
			return fmt.Errorf("strategy 'list' requires a non-empty 'list' of directories")
		}
	case StrategyPattern:
		if raw.Pattern == "" {
			return fmt.Errorf("strategy 'pattern' requires a 'pattern' field")
		}
		re, err := regexp.Compile(raw.Pattern)
		if err != nil {
			return fmt.Errorf("invalid regex for pattern '%s': %w", raw.Pattern, err)
		}
		raw.compiledPattern = re
	case StrategyPath:
	default:
		return fmt.Errorf("unknown discover strategy '%s', must be one of: path, list, pattern", raw.Strategy)
	}

	*d = DiscoverStrategy(raw)
	return nil
}

// LoadConfig reads and validates a bulk remediation config.
func LoadConfig(configPath string) (*RemediationConfig, error) {
	yamlFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config RemediationConfig
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML from %s: %w", configPath, err)
	}

	if config.APIVersion != "" && config.APIVersion != APIVersion {
		return nil, fmt.Errorf("unsupported apiVersion %q in %s", config.APIVersion, configPath)
	}
	if config.Kind != "" && config.Kind != Kind {
		return nil, fmt.Errorf("unsupported kind %q in %s", config.Kind, configPath)
	}
	for i, spec := range config.Repos {
		if spec.Name == "" {
			return nil, fmt.Errorf("repos[%d]: name is required", i)
		}
		if spec.Path == "" {
			return nil, fmt.Errorf("repos[%d] (%s): path is required", i, spec.Name)
		}
		if spec.Feed == "" {
			config.Repos[i].Feed = DefaultFeed
		}
	}
	return &config, nil
}
