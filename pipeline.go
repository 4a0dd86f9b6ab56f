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

package thumbcache

import (
	"context"
	"io"
	"log"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"

	"github.com/forensicanalysis/thumbcache/cachefile"
	"github.com/forensicanalysis/thumbcache/esedb"
	"github.com/forensicanalysis/thumbcache/ole"
	"github.com/forensicanalysis/thumbcache/thumbsdb"
)

// Stats summarizes one extraction run.
type Stats struct {
	Streams      int // streams or cache entries visited
	Extracted    int // thumbnails handed to the sink
	Dormant      int // cache entries without payload
	Skipped      int // streams skipped after decode faults
	CatalogCount int // catalog records seen
	IndexEntries int // IMMM records seen
}

// Pipeline extracts thumbnails from a single input at a time and emits
// them to a sink in on-disk order. An optional ESEDB view enriches
// records by Thumb Cache ID; the Thumbs.db catalog enriches by stream id.
// Both sources merge without overwriting earlier non-empty fields.
type Pipeline struct {
	Sink      Sink
	ESEDB     *esedb.View
	Verbosity int

	Stats Stats

	// Catalog and Index hold the decoded metadata streams of the last
	// input, for reporting.
	Catalog *thumbsdb.Catalog
	Index   *cachefile.Index
}

// NewPipeline creates a pipeline emitting to sink.
func NewPipeline(sink Sink) *Pipeline {
	return &Pipeline{Sink: sink}
}

func (p *Pipeline) warnf(format string, args ...interface{}) {
	if p.Verbosity >= 0 {
		log.Printf("Warning: "+format, args...)
	}
}

func (p *Pipeline) infof(format string, args ...interface{}) {
	if p.Verbosity > 0 {
		log.Printf("Info: "+format, args...)
	}
}

// ExtractFile opens and processes one input file. The file handle is
// released before returning on every path.
func (p *Pipeline) ExtractFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open input")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat input")
	}
	return p.Extract(ctx, f, info.Size(), path)
}

// Extract dispatches on the container signature and processes the input.
func (p *Pipeline) Extract(ctx context.Context, ra io.ReaderAt, size int64, source string) error {
	p.Stats = Stats{}
	p.Catalog = nil
	p.Index = nil

	prefix := make([]byte, 8)
	if n, err := ra.ReadAt(prefix, 0); err != nil && n < 4 {
		return errors.Wrapf(ErrUnknownType, "%s: %v", source, err)
	}
	switch Sniff(prefix) {
	case ContainerOLE, ContainerOLEInverted:
		return p.extractOLE(ctx, ra, size, source)
	case ContainerCMMM:
		return p.extractCMMM(ctx, ra, size, source)
	case ContainerIMMM:
		return p.extractIMMM(ra, size, source)
	}
	return errors.Wrapf(ErrUnknownType, "%s: signature % x", source, prefix)
}

func (p *Pipeline) emit(t *Thumbnail) error {
	if err := p.Sink.Write(t); err != nil {
		return errors.Wrap(ErrSinkWrite, err.Error())
	}
	p.Stats.Extracted++
	return nil
}

func (p *Pipeline) extractOLE(ctx context.Context, ra io.ReaderAt, size int64, source string) error {
	if size%512 != 0 {
		p.warnf("%s: length %d not a multiple of 512", source, size)
	}
	r, err := ole.New(ra, size)
	if err != nil {
		return err
	}

	if entry, err := r.FindEntry(thumbsdb.CatalogName); err == nil {
		data, err := r.StreamContext(ctx, entry)
		if err != nil {
			return p.mapCtxErr(err)
		}
		catalog, err := thumbsdb.DecodeCatalog(data)
		if err != nil {
			p.warnf("%s: catalog unreadable: %v", source, err)
		} else {
			p.Catalog = catalog
			p.Stats.CatalogCount = len(catalog.Entries)
			if catalog.OutOfSequence() {
				p.infof("%s: catalog index numbers out of usual sequence", source)
			}
		}
	}

	for i := range r.Entries() {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(ErrCancelled, err.Error())
		}
		entry := &r.Entries()[i]
		switch entry.Type {
		case ole.TypeStream:
		case ole.TypeRoot, ole.TypeEmpty, ole.TypeStorage, ole.TypeLockBytes, ole.TypeProperty:
			continue
		default:
			if p.Verbosity > 1 {
				log.Printf("Unused: entry %q has unknown type %s", entry.Name, entry.Type)
			}
			continue
		}
		if entry.Name == thumbsdb.CatalogName {
			continue
		}
		p.Stats.Streams++

		data, err := r.StreamContext(ctx, entry)
		if err != nil {
			if ctxErr := p.mapCtxErr(err); errors.Cause(ctxErr) == ErrCancelled {
				return ctxErr
			}
			p.Stats.Skipped++
			p.warnf("%s: stream %q unreadable: %v", source, entry.Name, err)
			continue
		}
		img, err := thumbsdb.DecodeStream(data)
		if err != nil {
			p.Stats.Skipped++
			p.warnf("%s: stream %q: %v", source, entry.Name, err)
			continue
		}
		if img.Type == 1 {
			p.infof("%s: stream %q reconstructed from raw scan data", source, entry.Name)
		}

		t := NewThumbnail()
		t.Source = source
		t.Width = img.Width
		t.Height = img.Height
		t.MIME = img.MIME
		t.Data = img.Data
		p.joinStreamName(t, entry.Name)

		if err := p.emit(t); err != nil {
			return err
		}
	}

	if p.Catalog != nil && p.Stats.CatalogCount != p.Stats.Extracted {
		p.warnf("%s: counts differ, catalog %d, extracted %d", source, p.Stats.CatalogCount, p.Stats.Extracted)
	}
	return nil
}

// joinStreamName attaches metadata for a Thumbs.db stream name. Old
// generation names are the reversed decimal stream id and join against the
// catalog; newer names are SIZE_CACHEID and join against the ESEDB view.
func (p *Pipeline) joinStreamName(t *Thumbnail, name string) {
	if id, ok := thumbsdb.StreamIDForName(name); ok {
		t.StreamID = id
		if p.Catalog == nil {
			return
		}
		if entry, ok := p.Catalog.Lookup(id); ok {
			t.OriginalName = entry.Name
			t.Modified = entry.Modified
		}
		return
	}
	if i := strings.LastIndex(name, "_"); i >= 0 {
		if id, err := strconv.ParseUint(name[i+1:], 16, 64); err == nil {
			t.CacheID = id
			p.joinESEDB(t)
		}
	}
}

// joinESEDB merges ESEDB row metadata into the thumbnail without
// overwriting fields another source already set.
func (p *Pipeline) joinESEDB(t *Thumbnail) {
	if p.ESEDB == nil || t.CacheID == 0 {
		return
	}
	row, ok := p.ESEDB.Lookup(t.CacheID)
	if !ok {
		return
	}
	if name := row.Name(); name != "" && t.OriginalName != "" {
		if !strings.EqualFold(path.Ext(name), path.Ext(t.OriginalName)) {
			p.warnf("cache id %016x: catalog name %q and index name %q disagree on extension",
				t.CacheID, t.OriginalName, name)
		}
	}
	patch := Thumbnail{
		OriginalName: row.Name(),
		Path:         row.Path,
		Modified:     row.Modified,
		Width:        uint32(row.ImageWidth),
		Height:       uint32(row.ImageHeight),
	}
	if err := mergo.Merge(t, patch); err != nil {
		p.warnf("metadata merge: %v", err)
	}
}

func (p *Pipeline) extractCMMM(ctx context.Context, ra io.ReaderAt, size int64, source string) error {
	r, err := cachefile.NewReader(ra, size)
	if err != nil {
		return err
	}
	p.infof("%s: %s cache, type %d", source, cachefile.FormatName(r.Header.FormatVersion), r.Header.CacheType)

	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(ErrCancelled, err.Error())
		}
		entry, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		p.Stats.Streams++
		if entry.DataSize > 0 && !entry.ChecksumOK {
			p.warnf("%s: entry %s data checksum mismatch", source, entry.ID)
		}

		t := NewThumbnail()
		t.Source = source
		t.CacheID = entry.CacheID
		t.Width = entry.Width
		t.Height = entry.Height
		t.MIME = entry.MIME
		t.Data = entry.Data
		if entry.DataSize == 0 {
			p.Stats.Dormant++
		}
		p.joinESEDB(t)

		if err := p.emit(t); err != nil {
			return err
		}
	}
}

func (p *Pipeline) extractIMMM(ra io.ReaderAt, size int64, source string) error {
	index, err := cachefile.DecodeIndex(ra, size)
	if err != nil {
		return err
	}
	p.Index = index
	p.Stats.IndexEntries = len(index.Entries)
	if cachefile.FormatName(index.Header.FormatVersion) == "Unknown Format" {
		p.warnf("%s: unknown index format version %#x, entries not decoded", source, index.Header.FormatVersion)
	}
	p.infof("%s: %s index, %d entries, %d used", source,
		cachefile.FormatName(index.Header.FormatVersion), len(index.Entries), index.Header.UsedEntries)
	return nil
}

func (p *Pipeline) mapCtxErr(err error) error {
	if cause := errors.Cause(err); cause == context.Canceled || cause == context.DeadlineExceeded {
		return errors.Wrap(ErrCancelled, err.Error())
	}
	return err
}
