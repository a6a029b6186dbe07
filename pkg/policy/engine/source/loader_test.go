package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bastion-hq/aegis/pkg/policy/engine"
	"bastion-hq/aegis/pkg/waf"
)

const sqlmapRules = `
rules:
  - id: block-sqlmap
    name: Block sqlmap
    action: BLOCK
    conditions:
      - field: headers.user-agent
        operator: contains
        value: sqlmap
  - id: count-large-body
    action: COUNT
    conditions:
      - field: body_size
        operator: greaterThan
        value: 1024
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	rules, err := Parse([]byte(sqlmapRules))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d, want 2", len(rules))
	}
	if rules[0].ID != "block-sqlmap" || rules[0].Name != "Block sqlmap" || rules[0].Action != waf.ActionBlock {
		t.Errorf("rules[0] = %+v", rules[0])
	}
	if rules[1].Kind != engine.KindConditions || rules[1].Conditions[0].Operator != engine.OpGreaterThan {
		t.Errorf("rules[1] = %+v", rules[1])
	}
}

func TestParse_Empty(t *testing.T) {
	rules, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("len(rules) = %d, want 0", len(rules))
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "rules:\n  - id: r\n    action: BLOCK\n    priority: 3\n"},
		{"bad operator", "rules:\n  - id: r\n    action: BLOCK\n    conditions:\n      - {field: path, operator: startsWith, value: /}\n"},
		{"bad regex", "rules:\n  - id: r\n    action: BLOCK\n    conditions:\n      - {field: path, operator: regex, value: \"(\"}\n"},
		{"missing value", "rules:\n  - id: sqli\n    action: BLOCK\n    conditions:\n      - {field: query.q, operator: contains}\n"},
		{"null value", "rules:\n  - id: sqli\n    action: BLOCK\n    conditions:\n      - {field: query.q, operator: equals, value: null}\n"},
		{"malformed yaml", "rules: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "10-bots.yaml"), sqlmapRules)
	writeFile(t, filepath.Join(dir, "nested", "20-admin.yml"), `
rules:
  - id: challenge-admin
    action: CHALLENGE
    conditions:
      - {field: path, operator: regex, value: "^/admin"}
`)
	writeFile(t, filepath.Join(dir, "README.md"), "not a rule file")
	writeFile(t, filepath.Join(dir, ".hidden", "x.yaml"), "rules: [\n")

	rules, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	var ids []string
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	want := []string{"block-sqlmap", "count-large-body", "challenge-admin"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestLoad_DuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), sqlmapRules)
	writeFile(t, filepath.Join(dir, "b.yaml"), sqlmapRules)

	_, err := Load(dir)
	if !errors.Is(err, engine.ErrDuplicateRule) {
		t.Errorf("Load() error = %v, want ErrDuplicateRule", err)
	}
	var loadErr *LoadError
	if !errors.As(err, &loadErr) || filepath.Base(loadErr.Path) != "b.yaml" {
		t.Errorf("LoadError path = %v", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want ErrNotExist", err)
	}
}
