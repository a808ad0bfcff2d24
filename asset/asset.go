// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package asset resolves scene, texture and shader files either from a
// directory or from a memory mapped kar archive.
package asset

import (
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/devblok/korender/asset/kar"
)

// ErrNotFound is returned for names no loader knows.
var ErrNotFound = errors.New("asset not found")

// Loader reads whole assets by slash separated name.
type Loader interface {
	Load(name string) ([]byte, error)
}

// Closer is a Loader holding resources that have to be released.
type Closer interface {
	Loader
	Close() error
}

// Open picks a loader for location: files ending in .kar are opened as
// archives, anything else as a directory.
func Open(location string) (Closer, error) {
	if strings.EqualFold(filepath.Ext(location), ".kar") {
		return OpenArchive(location)
	}
	info, err := os.Stat(location)
	if err != nil {
		return nil, errors.Wrap(err, "asset location")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("asset location %s is neither a directory nor a kar archive", location)
	}
	return Dir(location), nil
}

// Dir loads assets from a directory tree.
type Dir string

// Load implements Loader
func (d Dir) Load(name string) ([]byte, error) {
	clean := path.Clean("/" + name)
	data, err := ioutil.ReadFile(filepath.Join(string(d), filepath.FromSlash(clean)))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	return data, nil
}

// Close implements Closer
func (Dir) Close() error {
	return nil
}

// Archive loads assets from a memory mapped kar archive.
type Archive struct {
	file    *mmap.ReaderAt
	archive *kar.Archive
}

// OpenArchive memory maps the kar archive at p.
func OpenArchive(p string) (*Archive, error) {
	r, err := mmap.Open(p)
	if err != nil {
		return nil, errors.Wrap(err, "map archive")
	}
	ar, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, errors.Wrapf(err, "open archive %s", p)
	}
	return &Archive{file: r, archive: ar}, nil
}

// Load implements Loader
func (a *Archive) Load(name string) ([]byte, error) {
	data, err := a.archive.ReadAll(strings.TrimPrefix(path.Clean("/"+name), "/"))
	if errors.Cause(err) == kar.ErrFileNotFound {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return data, err
}

// Files lists the archived names.
func (a *Archive) Files() []string {
	return a.archive.Files()
}

// Close unmaps the archive.
func (a *Archive) Close() error {
	return a.file.Close()
}

// Sub scopes a loader to a directory prefix.
func Sub(l Loader, dir string) Loader {
	return subLoader{l, dir}
}

type subLoader struct {
	parent Loader
	dir    string
}

func (s subLoader) Load(name string) ([]byte, error) {
	return s.parent.Load(path.Join(s.dir, name))
}
