package scenefiles_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/wholebody/wbc/pkg/scenefiles"
)

func TestMatcher(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"wildcard", "*.yaml", "arm.yaml", true},
		{"wildcard stops at slash", "*.yaml", "robots/arm.yaml", false},
		{"double wildcard", "**/*.yaml", "robots/arm/arm.yaml", true},
		{"double wildcard at root", "**/*.yaml", "arm.yaml", true},
		{"question mark", "leg?.yml", "leg1.yml", true},
		{"question mark one char", "leg?.yml", "leg12.yml", false},
		{"character class", "leg[0-9].yml", "leg5.yml", true},
		{"negated class", "leg[!0-9].yml", "leg5.yml", false},
		{"dot is literal", "*.json", "scenexjson", false},
		{"trailing double wildcard", "robots/**", "robots/arm/arm.yaml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := scenefiles.NewMatcher([]string{tt.pattern})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := m.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func touch(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(p, []byte("version: \"1.0\"\n"), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
}

func TestExpand(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"arm.yaml",
		"legs/biped.yml",
		"legs/biped.json",
		"legs/notes.txt",
		"wbc.yaml",
		".git/config.yaml",
		"vendor/x/scene.yaml",
		"scene.yaml.bak",
	)
	j := func(p string) string { return filepath.Join(root, filepath.FromSlash(p)) }

	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{
			name: "directory",
			args: []string{root},
			want: []string{j("arm.yaml"), j("legs/biped.json"), j("legs/biped.yml")},
		},
		{
			name: "glob",
			args: []string{filepath.Join(root, "legs", "*.yml")},
			want: []string{j("legs/biped.yml")},
		},
		{
			name: "plain file kept and deduplicated",
			args: []string{j("legs/notes.txt"), j("legs/notes.txt")},
			want: []string{j("legs/notes.txt")},
		},
		{
			name:    "glob without matches",
			args:    []string{filepath.Join(root, "*.toml")},
			wantErr: true,
		},
		{
			name:    "missing file",
			args:    []string{j("missing.yaml")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scenefiles.Expand(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
