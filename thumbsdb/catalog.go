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

// Package thumbsdb decodes the thumbnail streams of Thumbs.db compound
// files: the Catalog stream that names thumbnails, and the image streams
// in their two header generations. Type 1 streams are reconstructed into
// standard CMYK JPEGs.
package thumbsdb

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/thumbcache/filetime"
	"github.com/forensicanalysis/thumbcache/ole"
)

// CatalogName is the stream holding the thumbnail catalog.
const CatalogName = "Catalog"

// CatalogEntry binds a stream id to the original file name and
// modification time of the thumbnailed file.
type CatalogEntry struct {
	StreamID uint32
	Name     string
	Modified time.Time
}

// Catalog is the decoded Catalog stream, in file order.
type Catalog struct {
	Version       uint16
	Count         uint32
	LargestWidth  uint32
	LargestHeight uint32
	Entries       []CatalogEntry
}

// ErrCatalogTruncated marks a catalog record running past the stream end.
var ErrCatalogTruncated = errors.New("thumbsdb: truncated catalog record")

// DecodeCatalog parses a Catalog stream. Records are parsed until a zero
// length prefix or the end of the stream.
func DecodeCatalog(data []byte) (*Catalog, error) {
	if len(data) < 16 {
		return nil, errors.Wrapf(ErrCatalogTruncated, "catalog header needs 16 bytes, have %d", len(data))
	}
	c := &Catalog{
		Version:       binary.LittleEndian.Uint16(data[2:]),
		Count:         binary.LittleEndian.Uint32(data[4:]),
		LargestWidth:  binary.LittleEndian.Uint32(data[8:]),
		LargestHeight: binary.LittleEndian.Uint32(data[12:]),
	}
	off := int(binary.LittleEndian.Uint16(data))
	for off+16 <= len(data) {
		length := int(binary.LittleEndian.Uint32(data[off:]))
		if length == 0 {
			break
		}
		if length < 20 || off+length > len(data) {
			return nil, errors.Wrapf(ErrCatalogTruncated, "record of %d bytes at offset %d", length, off)
		}
		id := binary.LittleEndian.Uint32(data[off+4:])
		ft := binary.LittleEndian.Uint64(data[off+8:])
		// The name is UTF-16LE, NUL terminated, followed by 4 zero bytes.
		name, err := ole.DecodeUTF16(data[off+16 : off+length-4])
		if err != nil {
			return nil, err
		}
		c.Entries = append(c.Entries, CatalogEntry{
			StreamID: id,
			Name:     name,
			Modified: filetime.ToTime(ft),
		})
		off += length
	}
	return c, nil
}

// Lookup returns the catalog entry for a stream id.
func (c *Catalog) Lookup(id uint32) (*CatalogEntry, bool) {
	for i := range c.Entries {
		if c.Entries[i].StreamID == id {
			return &c.Entries[i], true
		}
	}
	return nil, false
}

// OutOfSequence reports whether catalog ids deviate from the usual
// ascending numbering, an indicator of deleted thumbnails.
func (c *Catalog) OutOfSequence() bool {
	for i := range c.Entries {
		if c.Entries[i].StreamID != uint32(i)+1 {
			return true
		}
	}
	return false
}

// StreamIDForName recovers the numeric stream id from an OLE stream name:
// old generation names are the decimal id reversed, so id 42 is stored as
// "24". Names longer than three characters are never index names.
func StreamIDForName(name string) (uint32, bool) {
	if len(name) == 0 || len(name) > 3 {
		return 0, false
	}
	var id uint32
	for i := len(name) - 1; i >= 0; i-- {
		ch := name[i]
		if ch < '0' || ch > '9' {
			return 0, false
		}
		id = id*10 + uint32(ch-'0')
	}
	return id, true
}

// NameForStreamID renders a stream id as its on-disk reversed stream name.
func NameForStreamID(id uint32) string {
	if id == 0 {
		return "0"
	}
	var out []byte
	for id > 0 {
		out = append(out, byte('0'+id%10))
		id /= 10
	}
	return string(out)
}
