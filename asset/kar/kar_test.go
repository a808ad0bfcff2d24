// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"io"
	"io/ioutil"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/devblok/korender/asset/kar"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	builder, err := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	for name, contents := range files {
		if err := builder.Add(name, strings.NewReader(contents)); err != nil {
			t.Fatal(err)
		}
	}

	buf := bytes.NewBuffer([]byte{})
	written, err := builder.WriteTo(buf)
	if err != nil {
		t.Fatal(err)
	}
	if written != int64(buf.Len()) {
		t.Fatalf("reported %d bytes, wrote %d", written, buf.Len())
	}
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	data := buildArchive(t, map[string]string{"test": testString1, "test2": testString2})

	ar, err := kar.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	f, err := ar.Open("test")
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != int64(len(testString1)) {
		t.Errorf("bad size %d", f.Size())
	}

	result := make([]byte, len(testString1))
	if _, err := io.ReadFull(f, result); err != nil {
		t.Fatal(err)
	}
	if string(result) != testString1 {
		t.Error("test string does not match up")
	}
}

func TestCreateAndReadAll(t *testing.T) {
	data := buildArchive(t, map[string]string{"test": testString1, "test2": testString2})

	ar, err := kar.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	for name, expected := range map[string]string{"test": testString1, "test2": testString2} {
		f, err := ar.ReadAll(name)
		if err != nil {
			t.Fatal(err)
		}
		if string(f) != expected {
			t.Errorf("%s: test string does not match up", name)
		}
	}

	if files := ar.Files(); !reflect.DeepEqual(files, []string{"test", "test2"}) {
		t.Errorf("bad file list %v", files)
	}
	if ar.Header().Author != "devblok" || len(ar.Header().Index) != 2 {
		t.Errorf("bad header %+v", ar.Header())
	}
}

func TestOpenMissingFile(t *testing.T) {
	data := buildArchive(t, map[string]string{"test": testString1})

	ar, err := kar.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.Open("nope"); errors.Cause(err) != kar.ErrFileNotFound {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
	if _, err := ar.ReadAll("nope"); errors.Cause(err) != kar.ErrFileNotFound {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestOpenNotAnArchive(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("TAR\x00aaaaaaaaaaaaaaaa"),
		[]byte("KA"),
		append([]byte("KAR\x00"), 0xff, 0, 0, 0, 0, 0, 0, 0),
		append([]byte("KAR\x00"), 3, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff),
	} {
		if _, err := kar.Open(bytes.NewReader(data)); errors.Cause(err) != kar.ErrFileFormat {
			t.Errorf("%q: expected ErrFileFormat, got %v", data, err)
		}
	}
}

func TestAddReplaces(t *testing.T) {
	builder, err := kar.NewBuilder(kar.Header{Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	builder.Add("test", strings.NewReader(testString1))
	builder.Add("test", strings.NewReader(testString2))
	if builder.Len() != 1 {
		t.Fatalf("expected one file, got %d", builder.Len())
	}

	buf := bytes.NewBuffer([]byte{})
	if _, err := builder.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	ar, err := kar.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if f, err := ar.ReadAll("test"); err != nil || string(f) != testString2 {
		t.Errorf("expected the second contents, got %q, %v", f, err)
	}
}

func TestAddConcurrently(t *testing.T) {
	builder, err := kar.NewBuilder(kar.Header{Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := builder.Add(name, strings.NewReader(strings.Repeat(name, 1000))); err != nil {
				t.Error(err)
			}
		}(name)
	}
	wg.Wait()

	buf := bytes.NewBuffer([]byte{})
	if _, err := builder.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	ar, err := kar.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if f, err := ar.ReadAll(name); err != nil || string(f) != strings.Repeat(name, 1000) {
			t.Errorf("%s: contents do not match up (%v)", name, err)
		}
	}
}

func TestOpenmmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opentest.kar")
	data := buildArchive(t, map[string]string{
		"test/test1.txt": "this is a test",
		"test/test2.txt": "this is another test",
	})
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	r, err := mmap.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ar, err := kar.Open(r)
	if err != nil {
		t.Fatal(err)
	}
	if f, err := ar.ReadAll("test/test2.txt"); err != nil {
		t.Error(err)
	} else if string(f) != "this is another test" {
		t.Error("result is not expected value")
	}
}
