// Package classindex looks up compiled class bytes by internal name. It is the
// build's view of every class it can see: output directories, jars, jmods and
// classes generated in memory during the current compilation.
package classindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/daimatz/lambdainline/pkg/classfile"
)

var log = commonlog.GetLogger("lambdainline.classindex")

// ErrClassNotFound is returned (wrapped) when no entry of an index has the
// requested class.
var ErrClassNotFound = errors.New("class not found")

// Index looks up class bytes by internal name ("pkg/Outer$Inner").
type Index interface {
	LookupClassBytes(internalName string) ([]byte, error)
}

func notFound(name, where string) error {
	return fmt.Errorf("%w: %s in %s", ErrClassNotFound, name, where)
}

// LoadClass looks up name and parses it.
func LoadClass(idx Index, name string, opts ...classfile.Option) (*classfile.ClassFile, error) {
	data, err := idx.LookupClassBytes(name)
	if err != nil {
		return nil, err
	}
	cf, err := classfile.ParseBytes(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return cf, nil
}

// Memory holds classes produced during the current compilation.
type Memory struct {
	mu      sync.RWMutex
	classes map[string][]byte
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{classes: make(map[string][]byte)}
}

// Put registers class bytes under name, replacing any earlier entry.
func (m *Memory) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[name] = data
}

// PutClass serializes w and registers it under name.
func (m *Memory) PutClass(name string, w *classfile.Writer) error {
	data, err := w.Bytes()
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	m.Put(name, data)
	return nil
}

func (m *Memory) LookupClassBytes(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.classes[name]
	if !ok {
		return nil, notFound(name, "memory")
	}
	return data, nil
}

// Dir reads classes from an output directory laid out by package.
type Dir struct {
	Root string
}

// NewDir creates an index over a class output directory.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

func (d *Dir) LookupClassBytes(name string) ([]byte, error) {
	path := filepath.Join(d.Root, filepath.FromSlash(name)+".class")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(name, d.Root)
	}
	if err != nil {
		return nil, fmt.Errorf("dir: reading %s: %w", path, err)
	}
	return data, nil
}

// Chain asks each index in order and returns the first hit, so earlier
// entries shadow later ones the way a classpath does.
type Chain []Index

func (c Chain) LookupClassBytes(name string) ([]byte, error) {
	for _, idx := range c {
		data, err := idx.LookupClassBytes(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	return nil, notFound(name, "classpath")
}

// FromClasspath builds a Chain from classpath entries: ".jar" and ".jmod"
// files become archives, everything else a directory.
func FromClasspath(entries []string) Chain {
	var chain Chain
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e)) {
		case ".jar", ".zip":
			chain = append(chain, NewJar(e))
		case ".jmod":
			chain = append(chain, NewJmod(e))
		default:
			chain = append(chain, NewDir(e))
		}
		log.Debugf("classpath entry %s", e)
	}
	return chain
}
