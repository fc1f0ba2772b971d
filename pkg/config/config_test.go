package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `
[classpath]
entries = ["classes", "/opt/jdk/jmods/java.base.jmod"]

[cache]
classes = 64

[log]
verbosity = 2
file = "inline.log"

[smap]
stratum = "Guest"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{filepath.Join(dir, "classes"), "/opt/jdk/jmods/java.base.jmod"}
	if got := c.ClasspathEntries(); !reflect.DeepEqual(got, want) {
		t.Errorf("classpath = %v, want %v", got, want)
	}
	if c.Cache.Classes != 64 {
		t.Errorf("cache classes = %d, want 64", c.Cache.Classes)
	}
	if c.Log.Verbosity != 2 || c.Log.File != "inline.log" {
		t.Errorf("log = %+v, want verbosity 2 file inline.log", c.Log)
	}
	if c.SMAP.Stratum != "Guest" {
		t.Errorf("stratum = %q, want Guest", c.SMAP.Stratum)
	}
}

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing file", ""},
		{"empty sections", "[classpath]\n[cache]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.content != "" {
				if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tt.content), 0644); err != nil {
					t.Fatal(err)
				}
			}
			c, err := Load(dir)
			if err != nil {
				t.Fatal(err)
			}
			if c.Cache.Classes != 256 {
				t.Errorf("cache classes = %d, want 256", c.Cache.Classes)
			}
			if c.SMAP.Stratum != "Kotlin" {
				t.Errorf("stratum = %q, want Kotlin", c.SMAP.Stratum)
			}
			if len(c.ClasspathEntries()) != 0 {
				t.Errorf("classpath = %v, want empty", c.ClasspathEntries())
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[cache\nclasses = 1\n"},
		{"unknown key", "[cache]\nsize = 1\n"},
		{"wrong type", "[cache]\nclasses = \"many\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
