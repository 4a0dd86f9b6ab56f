/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/thumbcache"
	"github.com/forensicanalysis/thumbcache/cachefile"
	"github.com/forensicanalysis/thumbcache/report"
)

// thumbsSubdir holds the symlinks from original file names to the
// numbered images.
const thumbsSubdir = ".thumbs"

// dirSink writes extracted images into a directory, named by a 10 digit
// zero padded index plus the detected extension. Dormant entries get no
// file but stay in the report.
type dirSink struct {
	fs       afero.Fs
	dir      string
	symlinks bool
	utf8     bool

	index   int
	reports []*report.Report
	current *report.Report
}

func newDirSink(fs afero.Fs, dir string, symlinks, utf8 bool) *dirSink {
	return &dirSink{fs: fs, dir: dir, symlinks: symlinks, utf8: utf8}
}

// beginInput starts a report section for the next input file with its
// sniffed container family.
func (d *dirSink) beginInput(source, container string) {
	d.current = report.New(source, container)
	d.reports = append(d.reports, d.current)
}

func (d *dirSink) setMD5(sum string) {
	if d.current != nil {
		d.current.MD5 = sum
	}
}

func (d *dirSink) Write(t *thumbcache.Thumbnail) error {
	fileName := ""
	if len(t.Data) > 0 {
		d.index++
		fileName = fmt.Sprintf("%010d.%s", d.index, cachefile.ExtensionForMIME(t.MIME))
		if err := afero.WriteFile(d.fs, filepath.Join(d.dir, fileName), t.Data, 0644); err != nil {
			return errors.Wrap(thumbcache.ErrSinkWrite, err.Error())
		}
		if d.symlinks && t.OriginalName != "" {
			if err := d.link(t.OriginalName, fileName); err != nil {
				return err
			}
		}
	}
	if d.current != nil {
		d.current.Add(t, fileName)
	}
	return nil
}

// link places a symlink .thumbs/<original name> pointing at the numbered
// image. Symlinks require a real file system underneath.
func (d *dirSink) link(originalName, fileName string) error {
	linkDir := filepath.Join(d.dir, thumbsSubdir)
	if err := d.fs.MkdirAll(linkDir, 0755); err != nil {
		return errors.Wrap(thumbcache.ErrSymlink, err.Error())
	}
	if _, ok := d.fs.(*afero.OsFs); !ok {
		log.Printf("Warning: file system does not support symlinks")
		return nil
	}
	linkName := filepath.Join(linkDir, sanitizeName(originalName, d.utf8))
	_ = d.fs.Remove(linkName)
	if err := os.Symlink(filepath.Join("..", fileName), linkName); err != nil {
		return errors.Wrap(thumbcache.ErrSymlink, err.Error())
	}
	return nil
}

// writeReports renders the HTML page and JSON manifest of every processed
// input. Reports after the first get an index suffix.
func (d *dirSink) writeReports() error {
	for i, r := range d.reports {
		dir := d.dir
		if i > 0 {
			dir = filepath.Join(d.dir, fmt.Sprintf("report_%03d", i))
			if err := d.fs.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		if err := r.WriteHTML(d.fs, dir); err != nil {
			return err
		}
		if err := r.WriteJSON(d.fs, dir); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeName makes an original file name safe as a link name. Path
// separators always flatten; without utf8 mode every non ASCII rune is
// percent escaped.
func sanitizeName(name string, utf8 bool) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	if utf8 {
		return name
	}
	var b strings.Builder
	for _, r := range name {
		if r > unicode.MaxASCII || r < 0x20 {
			fmt.Fprintf(&b, "%%%04X", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// listSink prints recovered thumbnails instead of extracting them.
type listSink struct {
	verbosity int
	count     int
}

func (l *listSink) Write(t *thumbcache.Thumbnail) error {
	l.count++
	if l.verbosity < 0 {
		return nil
	}
	name := t.OriginalName
	if name == "" {
		name = "(unnamed)"
	}
	switch {
	case t.StreamID != 0:
		log.Printf("% 4d  stream %d  %s  %s", l.count, t.StreamID, t.MIME, name)
	case t.CacheID != 0:
		log.Printf("% 4d  %016x  %s  %s", l.count, t.CacheID, t.MIME, name)
	default:
		log.Printf("% 4d  %s  %s", l.count, t.MIME, name)
	}
	return nil
}

// multiSink fans a thumbnail out to several sinks.
type multiSink []thumbcache.Sink

func (m multiSink) Write(t *thumbcache.Thumbnail) error {
	for _, sink := range m {
		if err := sink.Write(t); err != nil {
			return err
		}
	}
	return nil
}
