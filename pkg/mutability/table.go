// Package mutability projects host collection interfaces onto the
// read-only and mutable guest interfaces IDE tooling shows for them.
package mutability

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed table.yaml
var defaultTable []byte

// Mapping ties a host interface to its two guest views.
type Mapping struct {
	Host           string   `yaml:"host"`
	TypeParameters []string `yaml:"typeParameters"`
	ReadOnly       string   `yaml:"readOnly"`
	Mutable        string   `yaml:"mutable"`
}

// Interface is a guest interface: its direct supertypes and declared members.
type Interface struct {
	Supers  []string `yaml:"supers"`
	Members []string `yaml:"members"`
}

// Table holds the projection rules.
type Table struct {
	Mappings    []Mapping            `yaml:"mappings"`
	Interfaces  map[string]Interface `yaml:"interfaces"`
	Getters     map[string]string    `yaml:"getters"`
	Specialized []string             `yaml:"specialized"`

	byReadOnly  map[string]*Mapping
	byMutable   map[string]*Mapping
	byHost      map[string]*Mapping
	specialized map[string]bool

	mu       sync.Mutex
	wrappers map[wrapperKey]*Wrapper
}

type wrapperKey struct {
	host    string
	mutable bool
}

// Parse reads a table in the YAML form of the built-in one. Unknown keys are
// rejected.
func Parse(r io.Reader) (*Table, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var t Table
	if err := decoder.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("mutability: empty table")
		}
		return nil, fmt.Errorf("mutability: parse table: %w", err)
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return &t, nil
}

var (
	defaultOnce   sync.Once
	defaultParsed *Table
	defaultErr    error
)

// Default returns the built-in table.
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		defaultParsed, defaultErr = Parse(bytes.NewReader(defaultTable))
	})
	return defaultParsed, defaultErr
}

func (t *Table) index() error {
	t.byReadOnly = make(map[string]*Mapping)
	t.byMutable = make(map[string]*Mapping)
	t.byHost = make(map[string]*Mapping)
	t.specialized = make(map[string]bool)
	t.wrappers = make(map[wrapperKey]*Wrapper)
	for i := range t.Mappings {
		m := &t.Mappings[i]
		if m.Host == "" || m.ReadOnly == "" || m.Mutable == "" {
			return fmt.Errorf("mutability: mappings[%d] is incomplete", i)
		}
		if _, dup := t.byHost[m.Host]; dup {
			return fmt.Errorf("mutability: %s is mapped twice", m.Host)
		}
		for _, guest := range []string{m.ReadOnly, m.Mutable} {
			if _, ok := t.Interfaces[guest]; !ok {
				return fmt.Errorf("mutability: no members for %s", guest)
			}
		}
		t.byHost[m.Host] = m
		t.byReadOnly[m.ReadOnly] = m
		t.byMutable[m.Mutable] = m
	}
	for _, s := range t.Specialized {
		t.specialized[s] = true
	}
	return nil
}

// Lookup returns the mapping that has guest as one of its views and whether
// guest is the mutable one.
func (t *Table) Lookup(guest string) (m *Mapping, mutable bool, ok bool) {
	if m, ok := t.byReadOnly[guest]; ok {
		return m, false, true
	}
	if m, ok := t.byMutable[guest]; ok {
		return m, true, true
	}
	return nil, false, false
}

// HostOf returns the mapping of a host interface.
func (t *Table) HostOf(host string) (*Mapping, bool) {
	m, ok := t.byHost[host]
	return m, ok
}

// HasMember reports whether the guest interface or one of its supertypes
// declares a function or property named member.
func (t *Table) HasMember(guest, member string) bool {
	seen := make(map[string]bool)
	var visit func(string) bool
	visit = func(n string) bool {
		if seen[n] {
			return false
		}
		seen[n] = true
		i := t.Interfaces[n]
		for _, m := range i.Members {
			if m == member {
				return true
			}
		}
		for _, s := range i.Supers {
			if visit(s) {
				return true
			}
		}
		return false
	}
	return visit(guest)
}
