package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// parseINI reads the sectioned layout:
//
//	[os-package]
//	build-essential = present
//	telnet = absent
//
//	[language-runtime-package]
//	lxml = present >=1.0
//
// Repeated keys and repeated sections are kept as separate declarations so
// duplicates and conflicts reach descriptor validation.
func parseINI(content []byte) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:         "=",
		AllowShadows:               true,
		AllowDuplicateShadowValues: true,
		AllowNonUniqueSections:     true,
	}, content)
	if err != nil {
		return nil, fmt.Errorf("INI parse error: %w", err)
	}

	var packages []Package
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			if len(section.Keys()) > 0 {
				return nil, fmt.Errorf("%q is outside any manager section", section.Keys()[0].Name())
			}
			continue
		}

		for _, key := range section.Keys() {
			values := key.ValueWithShadows()
			if len(values) == 0 {
				values = []string{""}
			}
			for _, value := range values {
				state, constraint, _ := strings.Cut(strings.TrimSpace(value), " ")
				packages = append(packages, Package{
					Name:    key.Name(),
					Manager: section.Name(),
					State:   state,
					Version: strings.TrimSpace(constraint),
				})
			}
		}
	}
	return &Config{Format: FormatINI, Version: 1, Packages: packages}, nil
}
