// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Kar packs asset directories into kar archives and unpacks them again.
package main

import (
	"flag"
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/devblok/korender/asset"
	"github.com/devblok/korender/asset/kar"
)

func init() {
	currentUserName = "unknown"
	if u, err := user.Current(); err == nil && u.Name != "" {
		currentUserName = u.Name
	}
}

var (
	currentUserName string
	author          = flag.String("author", "", "Set the author of the package when compressing")
	version         = flag.Int64("version", 1, "Archive version number to create it with")
	extract         = flag.String("e", "", "Extract the archive given")
	compress        = flag.String("c", "", "Compress the given file/folder")
	list            = flag.String("l", "", "List the contents of the archive given")
	dstFile         = flag.String("f", "out.kar", "Destination file, or directory when extracting")
	silent          = flag.Bool("s", false, "Silent")
)

func main() {
	flag.Parse()
	if *silent {
		logrus.SetLevel(logrus.WarnLevel)
	}
	log := logrus.WithField("component", "kar")

	ops := 0
	for _, op := range []string{*extract, *compress, *list} {
		if op != "" {
			ops++
		}
	}
	if ops > 1 {
		log.Fatal("only one operation at a time")
	}

	var err error
	switch {
	case *extract != "":
		err = extractFiles(log)
	case *compress != "":
		err = compressFiles(log)
	case *list != "":
		err = listFiles()
	default:
		flag.PrintDefaults()
	}
	if err != nil {
		log.WithError(err).Fatal("failed")
	}
}

func compressFiles(log logrus.FieldLogger) error {
	if _, err := os.Stat(*dstFile); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}

	var filesToCompress []string
	err := filepath.Walk(*compress, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		filesToCompress = append(filesToCompress, path)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walk")
	}

	name := *author
	if name == "" {
		name = currentUserName
	}
	karBuilder, err := kar.NewBuilder(kar.Header{
		Author:      name,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})
	if err != nil {
		return err
	}
	defer karBuilder.Close()

	var (
		wg       sync.WaitGroup
		mutex    sync.Mutex
		firstErr error
	)
	for _, ftc := range filesToCompress {
		wg.Add(1)
		go func(ftc string) {
			defer wg.Done()
			if err := addFile(karBuilder, ftc); err != nil {
				mutex.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mutex.Unlock()
				return
			}
			log.WithField("file", ftc).Debug("added")
		}(ftc)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	dst, err := os.Create(*dstFile)
	if err != nil {
		return err
	}
	written, err := karBuilder.WriteTo(dst)
	if err != nil {
		dst.Close()
		os.Remove(*dstFile)
		return err
	}
	log.WithFields(logrus.Fields{
		"files": karBuilder.Len(),
		"bytes": written,
	}).Info("archive written")
	return dst.Close()
}

// addFile stores ftc under its slash separated path relative to the
// compressed folder, the form asset loaders ask for.
func addFile(b *kar.Builder, ftc string) error {
	f, err := os.Open(ftc)
	if err != nil {
		return err
	}
	defer f.Close()

	name, err := filepath.Rel(*compress, ftc)
	if err != nil || name == "." {
		name = filepath.Base(ftc)
	}
	return b.Add(filepath.ToSlash(name), f)
}

func extractFiles(log logrus.FieldLogger) error {
	archive, err := asset.OpenArchive(*extract)
	if err != nil {
		return err
	}
	defer archive.Close()

	dir := *dstFile
	if dir == "out.kar" {
		dir = "."
	}
	for _, name := range archive.Files() {
		data, err := archive.Load(name)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := ioutil.WriteFile(target, data, 0644); err != nil {
			return err
		}
		log.WithField("file", target).Debug("extracted")
	}
	log.WithField("files", len(archive.Files())).Info("archive extracted")
	return nil
}

func listFiles() error {
	f, err := os.Open(*list)
	if err != nil {
		return err
	}
	defer f.Close()

	archive, err := kar.Open(f)
	if err != nil {
		return err
	}
	header := archive.Header()
	logrus.WithFields(logrus.Fields{
		"author":  header.Author,
		"created": time.Unix(header.DateCreated, 0).Format(time.RFC3339),
		"version": header.Version,
	}).Info(*list)
	for _, entry := range header.Index {
		logrus.WithFields(logrus.Fields{
			"size":       entry.Size,
			"compressed": entry.CompressedSize,
		}).Info(entry.Name)
	}
	return nil
}
