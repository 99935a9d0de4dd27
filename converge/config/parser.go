package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
	FormatINI
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	case FormatINI:
		return "ini"
	}
	return "unknown"
}

func detectFormat(path string, content []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	case ".ini", ".cfg", ".conf":
		return FormatINI
	}
	return sniffFormat(content)
}

var iniSection = regexp.MustCompile(`^\[\s*(os-package|language-runtime-package)\s*\]$`)

// sniffFormat guesses the format of extensionless files.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		// manager-named sections only appear in the INI layout
		if iniSection.MatchString(line) {
			return FormatINI
		}
		if strings.HasPrefix(line, "[") || (strings.Contains(line, "=") && !strings.Contains(line, ":")) {
			return FormatTOML
		}
		if strings.Contains(line, ":") {
			return FormatYAML
		}
	}
	return FormatUnknown
}

// rawConfig accepts packages either as "manager:name" strings or as tables.
type rawConfig struct {
	Version  int           `yaml:"version" toml:"version" json:"version"`
	Packages []interface{} `yaml:"packages" toml:"packages" json:"packages"`
}

// Parse decodes content in the given format. ${VAR} and ${VAR:-default}
// are expanded from the environment first.
func Parse(content []byte, format Format) (*Config, error) {
	content = expandEnvVars(content)

	if format == FormatINI {
		return parseINI(content)
	}

	var raw rawConfig
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown file format")
	}

	if raw.Version > 1 {
		return nil, fmt.Errorf("unsupported config version %d", raw.Version)
	}

	packages, err := parsePackages(raw.Packages)
	if err != nil {
		return nil, err
	}
	return &Config{Format: format, Version: raw.Version, Packages: packages}, nil
}

func parsePackages(raw []interface{}) ([]Package, error) {
	packages := make([]Package, 0, len(raw))

	for i, item := range raw {
		switch v := item.(type) {
		case string:
			manager, name, ok := strings.Cut(v, ":")
			if !ok {
				return nil, fmt.Errorf("packages[%d]: %q is not of the form manager:name", i, v)
			}
			packages = append(packages, Package{Name: strings.TrimSpace(name), Manager: strings.TrimSpace(manager)})

		case map[string]interface{}:
			p := Package{}
			for key, value := range v {
				s, err := scalar(value)
				if err != nil {
					return nil, fmt.Errorf("packages[%d].%s: %w", i, key, err)
				}
				switch key {
				case "name":
					p.Name = s
				case "manager":
					p.Manager = s
				case "state":
					p.State = s
				case "version":
					p.Version = s
				default:
					return nil, fmt.Errorf("packages[%d]: unknown field %q", i, key)
				}
			}
			packages = append(packages, p)

		default:
			return nil, fmt.Errorf("packages[%d]: invalid format (expected string or object)", i)
		}
	}
	return packages, nil
}

// scalar renders unquoted integers ("version: 2") as strings. Fractional
// numbers are rejected: the decoders have already turned 4.10 into 4.1.
func scalar(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int, int64, uint64:
		return fmt.Sprint(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("numeric value %v is ambiguous, quote the version", v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("expected a string, got %T", value)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		value := os.Getenv(string(parts[1]))
		if value == "" && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}
