// Package config handles lambdainline.toml tool configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/daimatz/lambdainline/pkg/smap"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "lambdainline.toml"

// Config represents a lambdainline.toml file.
type Config struct {
	Classpath Classpath `toml:"classpath"`
	Cache     Cache     `toml:"cache"`
	Log       Log       `toml:"log"`
	SMAP      SMAP      `toml:"smap"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// Classpath lists class directories, jars and jmods, searched in order.
type Classpath struct {
	Entries []string `toml:"entries"`
}

// Cache sizes the class-bytes cache.
type Cache struct {
	Classes int `toml:"classes"`
}

// Log configures logging. Verbosity 0 logs errors only.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// SMAP configures the source maps written for inlined code.
type SMAP struct {
	Stratum string `toml:"stratum"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.Cache.Classes <= 0 {
		c.Cache.Classes = 256
	}
	if c.SMAP.Stratum == "" {
		c.SMAP.Stratum = smap.DefaultStratum
	}
}

// Load parses lambdainline.toml in dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	path := filepath.Join(abs, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c := Default()
		c.Dir = abs
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	c.Dir = abs
	c.setDefaults()
	return &c, nil
}

// ClasspathEntries returns the classpath with relative entries resolved
// against the configuration directory.
func (c *Config) ClasspathEntries() []string {
	out := make([]string, 0, len(c.Classpath.Entries))
	for _, e := range c.Classpath.Entries {
		if !filepath.IsAbs(e) && c.Dir != "" {
			e = filepath.Join(c.Dir, e)
		}
		out = append(out, e)
	}
	return out
}
