package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bastion-hq/aegis/pkg/policy/engine"
	"bastion-hq/aegis/pkg/waf"
)

// RuleFile is the on-disk representation of a rule file.
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec describes one condition rule.
type RuleSpec struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name,omitempty"`
	Description string             `yaml:"description,omitempty"`
	Action      waf.Action         `yaml:"action"`
	Conditions  []engine.Condition `yaml:"conditions"`
}

// LoadError reports a rule file that could not be read or parsed.
type LoadError struct {
	Path  string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("rule file %s: %v", e.Path, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Load reads every rule under path. Rule ids must be unique across files.
func Load(path string) ([]*engine.Rule, error) {
	files, err := ruleFiles(path)
	if err != nil {
		return nil, err
	}

	var rules []*engine.Rule
	seen := make(map[string]string)
	for _, file := range files {
		loaded, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		for _, r := range loaded {
			if prev, ok := seen[r.ID]; ok {
				return nil, &LoadError{
					Path:  file,
					Cause: fmt.Errorf("rule %s already defined in %s: %w", r.ID, prev, engine.ErrDuplicateRule),
				}
			}
			seen[r.ID] = file
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// LoadFile reads and validates a single rule file.
func LoadFile(path string) ([]*engine.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	return rules, nil
}

// Parse decodes and validates YAML rule data. Unknown keys are rejected.
func Parse(data []byte) ([]*engine.Rule, error) {
	var file RuleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}

	rules := make([]*engine.Rule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		r, err := engine.NewConditionRule(spec.ID, spec.Action, spec.Conditions...)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		r.Name = spec.Name
		r.Description = spec.Description
		rules = append(rules, r)
	}
	return rules, nil
}

func ruleFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if isHidden(p) && p != path {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && isRuleFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	return files, nil
}

func isRuleFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
