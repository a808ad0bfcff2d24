// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package asset_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"

	"github.com/devblok/korender/asset"
	"github.com/devblok/korender/asset/kar"
)

func writeFile(c *qt.C, p, contents string) {
	c.Assert(os.MkdirAll(filepath.Dir(p), 0755), qt.IsNil)
	c.Assert(ioutil.WriteFile(p, []byte(contents), 0644), qt.IsNil)
}

func TestDir(t *testing.T) {
	c := qt.New(t)
	root := t.TempDir()
	writeFile(c, filepath.Join(root, "textures", "wood.png"), "wood")

	l, err := asset.Open(root)
	c.Assert(err, qt.IsNil)
	defer l.Close()

	data, err := l.Load("textures/wood.png")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "wood")

	// names cannot escape the root
	writeFile(c, filepath.Join(filepath.Dir(root), "secret"), "nope")
	_, err = l.Load("../secret")
	c.Assert(errors.Cause(err), qt.Equals, asset.ErrNotFound)

	_, err = l.Load("missing.png")
	c.Assert(errors.Cause(err), qt.Equals, asset.ErrNotFound)

	sub := asset.Sub(l, "textures")
	data, err = sub.Load("wood.png")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "wood")
}

func TestArchive(t *testing.T) {
	c := qt.New(t)

	b, err := kar.NewBuilder(kar.Header{Author: "devblok", Version: 1})
	c.Assert(err, qt.IsNil)
	defer b.Close()
	c.Assert(b.Add("scene/quad.dae", strings.NewReader("<COLLADA/>")), qt.IsNil)
	c.Assert(b.Add("scene/wood.png", strings.NewReader("wood")), qt.IsNil)

	p := filepath.Join(t.TempDir(), "assets.kar")
	f, err := os.Create(p)
	c.Assert(err, qt.IsNil)
	_, err = b.WriteTo(f)
	c.Assert(err, qt.IsNil)
	c.Assert(f.Close(), qt.IsNil)

	l, err := asset.Open(p)
	c.Assert(err, qt.IsNil)
	defer l.Close()

	data, err := l.Load("/scene/quad.dae")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "<COLLADA/>")

	data, err = asset.Sub(l, "scene").Load("wood.png")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "wood")

	_, err = l.Load("scene/missing.png")
	c.Assert(errors.Cause(err), qt.Equals, asset.ErrNotFound)

	ar, ok := l.(*asset.Archive)
	c.Assert(ok, qt.Equals, true)
	c.Assert(ar.Files(), qt.DeepEquals, []string{"scene/quad.dae", "scene/wood.png"})
}

func TestOpenErrors(t *testing.T) {
	c := qt.New(t)
	root := t.TempDir()

	_, err := asset.Open(filepath.Join(root, "missing"))
	c.Assert(err, qt.ErrorMatches, "asset location: .*")

	plain := filepath.Join(root, "plain.txt")
	writeFile(c, plain, "text")
	_, err = asset.Open(plain)
	c.Assert(err, qt.ErrorMatches, "asset location .* is neither a directory nor a kar archive")

	bogus := filepath.Join(root, "bogus.kar")
	writeFile(c, bogus, "definitely not an archive")
	_, err = asset.Open(bogus)
	c.Assert(errors.Cause(err), qt.Equals, kar.ErrFileFormat)
}
