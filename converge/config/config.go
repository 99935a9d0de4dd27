// Package config loads package lists into descriptors.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/steelcutops/converge/converge/descriptor"
)

// Package is one configured entry before validation.
type Package struct {
	Name    string `yaml:"name" toml:"name" json:"name"`
	Manager string `yaml:"manager" toml:"manager" json:"manager"`
	State   string `yaml:"state,omitempty" toml:"state,omitempty" json:"state,omitempty"`
	Version string `yaml:"version,omitempty" toml:"version,omitempty" json:"version,omitempty"`
}

// Config is a loaded package list, in declared order.
type Config struct {
	Path     string
	Format   Format
	Version  int
	Packages []Package
}

// Load reads path, detecting its format from the extension or content.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	format := detectFormat(path, content)
	cfg, err := Parse(content, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Descriptors validates every entry and returns the descriptor list. All
// entry errors are reported together; duplicate and conflicting
// declarations are checked once every entry is valid.
func (c *Config) Descriptors() ([]descriptor.Descriptor, error) {
	var result *multierror.Error
	ds := make([]descriptor.Descriptor, 0, len(c.Packages))

	for i, p := range c.Packages {
		d, err := p.descriptor()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("packages[%d]: %w", i, err))
			continue
		}
		ds = append(ds, d)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	if err := descriptor.CheckDuplicates(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (p Package) descriptor() (descriptor.Descriptor, error) {
	state := descriptor.State(p.State)
	if p.State == "" {
		state = descriptor.StatePresent
	}
	return descriptor.New(p.Name, descriptor.Manager(p.Manager), state, p.Version)
}
