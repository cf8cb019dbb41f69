package target

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vijaygupta18/multidb/internal/model"
)

// Definition configures one database target.
type Definition struct {
	Name string `yaml:"name"`
	// DSN is the connection string. DSNEnv names an environment variable
	// holding it instead, which keeps credentials out of the file.
	DSN      string `yaml:"dsn"`
	DSNEnv   string `yaml:"dsn_env"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// ResolveDSN returns the connection string for d.
func (d Definition) ResolveDSN() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}
	if d.DSNEnv != "" {
		if v := os.Getenv(d.DSNEnv); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("target %q: environment variable %s is empty", d.Name, d.DSNEnv)
	}
	return "", fmt.Errorf("target %q: dsn or dsn_env is required", d.Name)
}

type fileSchema struct {
	Targets []Definition `yaml:"targets"`
}

// LoadFile reads target definitions from a YAML file.
func LoadFile(path string) ([]Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return ParseFile(b)
}

// ParseFile parses a YAML targets document of the form
//
//	targets:
//	  - name: primary
//	    dsn_env: PRIMARY_DSN
//	    max_conns: 10
func ParseFile(b []byte) ([]Definition, error) {
	var f fileSchema
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("yaml parse: %w", err)
	}
	if len(f.Targets) == 0 {
		return nil, fmt.Errorf("targets file defines no targets")
	}

	seen := make(map[model.TargetName]bool, len(f.Targets))
	for i, d := range f.Targets {
		name, err := model.ParseTargetName(d.Name)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("target %q defined more than once", name)
		}
		seen[name] = true
		if d.DSN == "" && d.DSNEnv == "" {
			return nil, fmt.Errorf("target %q: dsn or dsn_env is required", name)
		}
		if d.MaxConns < 0 || d.MinConns < 0 || (d.MaxConns > 0 && d.MinConns > d.MaxConns) {
			return nil, fmt.Errorf("target %q: invalid pool size min=%d max=%d", name, d.MinConns, d.MaxConns)
		}
	}
	return f.Targets, nil
}
