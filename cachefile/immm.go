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

package cachefile

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/thumbcache/filetime"
)

// UnusedOffset marks a cleared bucket offset in an index entry.
const UnusedOffset uint32 = 0xFFFFFFFF

// IndexHeader is the IMMM file header. Windows 10 appends 116 bytes of
// unexplained fields before the first entry.
type IndexHeader struct {
	FormatVersion  uint32
	CacheTypeFlags uint32
	UsedEntries    uint32
	EntryCount     uint32
	TotalEntries   uint32
}

// IndexEntry is one index record. Offsets maps resolution bucket names to
// offsets into the corresponding thumbcache_*.db; cleared buckets carry
// UnusedOffset.
type IndexEntry struct {
	CacheID  uint64
	Modified time.Time // stored on Vista only
	Flags    uint32
	Offsets  map[string]uint32
}

// Empty reports whether the record carries neither hash nor flags.
func (e *IndexEntry) Empty() bool {
	return e.CacheID == 0 && (e.Flags == 0 || e.Flags == 0xFFFFFFFF)
}

// Buckets lists the resolution buckets the thumbnail is present in.
func (e *IndexEntry) Buckets() []string {
	var out []string
	for _, name := range bucketNames {
		if off, ok := e.Offsets[name]; ok && off != UnusedOffset {
			out = append(out, name)
		}
	}
	return out
}

// Index is a fully decoded thumbcache_idx.db.
type Index struct {
	Header  IndexHeader
	Entries []IndexEntry
}

// Lookup finds the index entry for a cache id.
func (ix *Index) Lookup(id uint64) (*IndexEntry, bool) {
	for i := range ix.Entries {
		if ix.Entries[i].CacheID == id {
			return &ix.Entries[i], true
		}
	}
	return nil, false
}

// bucketNames in stable read order across all known versions.
var bucketNames = []string{
	"16", "32", "48", "96", "256", "768", "1024", "1280", "1600", "1920",
	"2560", "sr", "wide", "exif", "wide_alternate", "custom_stream",
}

// bucketField describes one per-entry offset slot and the format versions
// that carry it. The record stride grew with each Windows generation, so
// presence is keyed on version comparisons, ported from observation of
// real caches.
type bucketField struct {
	name    string
	present func(v uint32) bool
}

var bucketLayout = []bucketField{
	{"16", func(v uint32) bool { return v > FormatWin7 }},
	{"32", func(v uint32) bool { return true }},
	{"48", func(v uint32) bool { return v > FormatWin7 }},
	{"96", func(v uint32) bool { return true }},
	{"256", func(v uint32) bool { return true }},
	{"768", func(v uint32) bool { return v > FormatWin81 }},
	{"1024", func(v uint32) bool { return true }},
	{"1280", func(v uint32) bool { return v > FormatWin81 }},
	{"1600", func(v uint32) bool { return v == FormatWin81 }},
	{"1920", func(v uint32) bool { return v > FormatWin81 }},
	{"2560", func(v uint32) bool { return v > FormatWin81 }},
	{"sr", func(v uint32) bool { return true }},
	{"wide", func(v uint32) bool { return v > FormatWin7 }},
	{"exif", func(v uint32) bool { return v > FormatWin7 }},
	{"wide_alternate", func(v uint32) bool { return v > FormatWin8v3 }},
	{"custom_stream", func(v uint32) bool { return v > FormatWin81 }},
}

// DecodeIndex parses a thumbcache_idx.db file.
func DecodeIndex(ra io.ReaderAt, size int64) (*Index, error) {
	if size < 24 {
		return nil, errors.Wrapf(ErrTruncated, "file of %d bytes too small for header", size)
	}
	head := make([]byte, 24)
	if _, err := ra.ReadAt(head, 0); err != nil {
		return nil, errors.Wrap(err, "cachefile: read failed")
	}
	if !bytes.Equal(head[:4], sigIMMM) {
		return nil, errors.Wrapf(ErrBadSignature, "want IMMM, got % x", head[:4])
	}
	ix := &Index{Header: IndexHeader{
		FormatVersion:  binary.LittleEndian.Uint32(head[4:]),
		CacheTypeFlags: binary.LittleEndian.Uint32(head[8:]),
		UsedEntries:    binary.LittleEndian.Uint32(head[12:]),
		EntryCount:     binary.LittleEndian.Uint32(head[16:]),
		TotalEntries:   binary.LittleEndian.Uint32(head[20:]),
	}}

	switch ix.Header.FormatVersion {
	case FormatVista, FormatWin7, FormatWin8, FormatWin8v2, FormatWin8v3, FormatWin81, FormatWin10:
	default:
		// No record stride is known for other versions; only the header
		// is decoded.
		return ix, nil
	}

	off := int64(24)
	if ix.Header.FormatVersion == FormatWin10 {
		off += 116
	}

	v := ix.Header.FormatVersion
	stride := int64(12) // hash + flags
	if v == FormatVista {
		stride += 8
	}
	for _, f := range bucketLayout {
		if f.present(v) {
			stride += 4
		}
	}

	record := make([]byte, stride)
	for off+stride <= size {
		if _, err := ra.ReadAt(record, off); err != nil {
			return nil, errors.Wrap(ErrTruncated, "index entry")
		}
		entry := IndexEntry{
			CacheID: binary.LittleEndian.Uint64(record),
			Offsets: make(map[string]uint32, len(bucketLayout)),
		}
		p := 8
		if v == FormatVista {
			entry.Modified = filetime.ToTime(binary.LittleEndian.Uint64(record[p:]))
			p += 8
		}
		entry.Flags = binary.LittleEndian.Uint32(record[p:])
		p += 4
		for _, f := range bucketLayout {
			if !f.present(v) {
				continue
			}
			entry.Offsets[f.name] = binary.LittleEndian.Uint32(record[p:])
			p += 4
		}
		ix.Entries = append(ix.Entries, entry)
		off += stride
	}
	return ix, nil
}
