// tilepack bundles a generated tile directory into a single tile pack
// that panoview can memory map.
//
// Usage:
//
//	tilepack -o pano.pvtp <tile directory>
//
// The directory must hold a config.json scene description with a
// multiRes section, as written by common multires tile generators.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gmlewis/panoview/loader"
	"github.com/gmlewis/panoview/tilepack"
)

var (
	out    = flag.String("o", "", "Output tile pack `file` (default <directory>.pvtp)")
	author = flag.String("author", "", "Author recorded in the pack header")
	jobs   = flag.Int("j", runtime.NumCPU(), "Number of files compressed concurrently")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tilepack [flags] <tile directory>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	dir := flag.Arg(0)
	file := *out
	if file == "" {
		file = filepath.Clean(dir) + loader.PackExt
	}

	b, err := build(os.DirFS(dir), tilepack.Header{Author: *author, DateCreated: time.Now().Unix()}, *jobs)
	if err != nil {
		log.Fatalf("%v: %v", dir, err)
	}
	f, err := os.Create(file)
	if err != nil {
		log.Fatal(err)
	}
	n, err := b.WriteTo(f)
	if err != nil {
		f.Close()
		log.Fatalf("write %v: %v", file, err)
	}
	if err := f.Close(); err != nil {
		log.Fatal(err)
	}
	log.WithFields(log.Fields{"file": file, "entries": b.Len(), "bytes": n}).Info("wrote tile pack")
}

// build adds every regular file of fsys to a new Builder. The scene
// description must hold a valid multires pyramid.
func build(fsys fs.FS, header tilepack.Header, jobs int) (*tilepack.Builder, error) {
	raw, err := fs.ReadFile(fsys, tilepack.DescriptorName)
	if err != nil {
		return nil, err
	}
	var d loader.Description
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&d); err != nil {
		return nil, fmt.Errorf("%v: %w", tilepack.DescriptorName, err)
	}
	if d.MultiRes == nil {
		return nil, fmt.Errorf("%v has no multiRes section", tilepack.DescriptorName)
	}
	if err := d.MultiRes.Validate(); err != nil {
		return nil, err
	}

	b := tilepack.NewBuilder(header)
	var g errgroup.Group
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	err = fs.WalkDir(fsys, ".", func(name string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.Type().IsRegular() {
			return nil
		}
		g.Go(func() error {
			data, err := fs.ReadFile(fsys, name)
			if err != nil {
				return err
			}
			return b.Add(name, data)
		})
		return nil
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
