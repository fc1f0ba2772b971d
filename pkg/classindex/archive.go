package classindex

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// Archive reads classes from a jar or a jmod file. The file is read and
// indexed on first lookup.
type Archive struct {
	Path string

	// prefix of class entries inside the zip ("classes/" in jmods)
	prefix string
	// bytes to skip before the zip data ("JM\x01\x00" in jmods)
	headerLen int

	once    sync.Once
	openErr error
	entries map[string]*zip.File
}

// NewJar creates an index over a jar file.
func NewJar(path string) *Archive {
	return &Archive{Path: path}
}

// NewJmod creates an index over a JDK jmod file.
func NewJmod(path string) *Archive {
	return &Archive{Path: path, prefix: "classes/", headerLen: 4}
}

func (a *Archive) open() error {
	a.once.Do(func() {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			a.openErr = fmt.Errorf("archive: reading %s: %w", a.Path, err)
			return
		}
		if len(data) < a.headerLen {
			a.openErr = fmt.Errorf("archive: %s is too short", a.Path)
			return
		}
		data = data[a.headerLen:]
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			a.openErr = fmt.Errorf("archive: opening zip %s: %w", a.Path, err)
			return
		}
		a.entries = make(map[string]*zip.File, len(zr.File))
		for _, f := range zr.File {
			a.entries[f.Name] = f
		}
		log.Debugf("indexed %d entries of %s", len(a.entries), a.Path)
	})
	return a.openErr
}

func (a *Archive) LookupClassBytes(name string) ([]byte, error) {
	if err := a.open(); err != nil {
		return nil, err
	}
	target := a.prefix + name + ".class"
	f, ok := a.entries[target]
	if !ok {
		return nil, notFound(name, a.Path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", target, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("archive: reading %s: %w", target, err)
	}
	return data, nil
}
