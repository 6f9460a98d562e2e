// Package config loads the repository tool configuration.
//
// Configuration is a single YAML file naming the managed repositories, the
// proxies that contribute metadata variants to each of them and the
// checksum algorithms to maintain. The loaded Config is never mutated;
// callers re-query it on every update instead of caching proxy ids.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/wolfeidau/maven-repo/checksum"
	"gopkg.in/yaml.v3"
)

// DefaultConcurrency is the number of files repaired in parallel.
const DefaultConcurrency = 4

// Config is the tool configuration.
type Config struct {
	// Algorithms are the checksum side-files maintained for every file.
	// Default: [sha1, md5]
	Algorithms []checksum.Algorithm `yaml:"algorithms"`

	// Metadata configures metadata side-file handling.
	Metadata MetadataConfig `yaml:"metadata"`

	// Repositories are the managed repositories.
	Repositories []RepositoryConfig `yaml:"repositories"`

	// Catalog is the path of the catalog database. Empty disables it.
	Catalog string `yaml:"catalog"`

	// Concurrency bounds parallel work during a repair.
	Concurrency int `yaml:"concurrency"`

	// Metrics configures metric export.
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetadataConfig configures metadata side-file handling.
type MetadataConfig struct {
	// RelaxedReferencePattern matches metadata file names that may be
	// referenced interchangeably inside checksum side-files, so that a
	// side-file copied from a proxy variant still validates.
	RelaxedReferencePattern string `yaml:"relaxed_reference_pattern"`

	// AcceptBareDigests accepts side-files holding only a digest.
	AcceptBareDigests bool `yaml:"accept_bare_digests"`
}

// RepositoryConfig describes one managed repository.
type RepositoryConfig struct {
	ID      string   `yaml:"id"`
	Root    string   `yaml:"root"`
	Proxies []string `yaml:"proxies"`

	// Include and Exclude are doublestar globs over repository paths
	// selecting the files whose checksums are maintained. An empty Include
	// selects every file.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	OTLPEndpoint      string `yaml:"otlp_endpoint"`
	PrometheusAddress string `yaml:"prometheus_address"`
}

// Default returns the configuration every file is loaded on top of.
func Default() *Config {
	return &Config{
		Algorithms: slices.Clone(checksum.DefaultAlgorithms),
		Metadata: MetadataConfig{
			RelaxedReferencePattern: checksum.DefaultMetadataReferencePattern,
		},
		Concurrency: DefaultConcurrency,
	}
}

// LoadFile loads and validates the configuration at path. Unknown keys are
// rejected. ${VAR} references in paths are expanded from the environment.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Catalog = os.ExpandEnv(c.Catalog)
	for i := range c.Repositories {
		c.Repositories[i].Root = os.ExpandEnv(c.Repositories[i].Root)
	}
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Algorithms) == 0 {
		errs = append(errs, errors.New("algorithms must not be empty"))
	}

	if _, err := checksum.NewMetadataReferences(c.Metadata.RelaxedReferencePattern); err != nil {
		errs = append(errs, fmt.Errorf("metadata.relaxed_reference_pattern: %w", err))
	}

	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}

	if len(c.Repositories) == 0 {
		errs = append(errs, errors.New("at least one repository is required"))
	}

	seen := make(map[string]bool, len(c.Repositories))
	for i, r := range c.Repositories {
		switch {
		case r.ID == "":
			errs = append(errs, fmt.Errorf("repositories[%d].id is required", i))
		case seen[r.ID]:
			errs = append(errs, fmt.Errorf("repositories[%d].id %q is not unique", i, r.ID))
		}
		seen[r.ID] = true

		if r.Root == "" {
			errs = append(errs, fmt.Errorf("repositories[%d].root is required", i))
		}
		for _, p := range r.Proxies {
			if p == "" {
				errs = append(errs, fmt.Errorf("repositories[%d].proxies contains an empty id", i))
			}
		}
		for _, g := range append(slices.Clone(r.Include), r.Exclude...) {
			if !doublestar.ValidatePattern(g) {
				errs = append(errs, fmt.Errorf("repositories[%d]: invalid glob %q", i, g))
			}
		}
	}

	return errors.Join(errs...)
}

// Repository returns the repository with the given id.
func (c *Config) Repository(id string) (RepositoryConfig, bool) {
	i := slices.IndexFunc(c.Repositories, func(r RepositoryConfig) bool { return r.ID == id })
	if i < 0 {
		return RepositoryConfig{}, false
	}
	return c.Repositories[i], true
}

// ProxyIDs returns the proxies of a repository. The result is a copy.
func (c *Config) ProxyIDs(repositoryID string) []string {
	r, ok := c.Repository(repositoryID)
	if !ok {
		return nil
	}
	return slices.Clone(r.Proxies)
}

// ReferencePolicy returns the side-file reference policy.
func (c *Config) ReferencePolicy() (checksum.ReferencePolicy, error) {
	policy, err := checksum.NewMetadataReferences(c.Metadata.RelaxedReferencePattern)
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// ChecksumOptions returns the checksum options implied by the configuration.
func (c *Config) ChecksumOptions() ([]checksum.Option, error) {
	policy, err := c.ReferencePolicy()
	if err != nil {
		return nil, err
	}
	return []checksum.Option{
		checksum.WithReferencePolicy(policy),
		checksum.WithBareDigests(c.Metadata.AcceptBareDigests),
	}, nil
}

// Matches reports whether the repository path p is selected by the include
// and exclude globs.
func (r RepositoryConfig) Matches(p string) bool {
	if len(r.Include) > 0 && !matchAny(r.Include, p) {
		return false
	}
	return !matchAny(r.Exclude, p)
}

func matchAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}
