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

// Package cachefile parses the Windows Vista and later thumbnail cache
// files: the CMMM entry caches (thumbcache_*.db) and the IMMM index
// (thumbcache_idx.db). Field presence varies by the format version the
// writing Windows release stamped into the header.
package cachefile

import (
	"bytes"
	"encoding/binary"
	"hash/crc64"
	"io"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/thumbcache/ole"
)

// Format versions stamped by each Windows release.
const (
	FormatVista  uint32 = 0x14
	FormatWin7   uint32 = 0x15
	FormatWin8   uint32 = 0x1A
	FormatWin8v2 uint32 = 0x1C
	FormatWin8v3 uint32 = 0x1E
	FormatWin81  uint32 = 0x1F
	FormatWin10  uint32 = 0x20
)

// FormatName returns the Windows release for a format version.
func FormatName(v uint32) string {
	switch v {
	case FormatVista:
		return "Windows Vista"
	case FormatWin7:
		return "Windows 7"
	case FormatWin8:
		return "Windows 8"
	case FormatWin8v2:
		return "Windows 8 v2"
	case FormatWin8v3:
		return "Windows 8 v3"
	case FormatWin81:
		return "Windows 8.1"
	case FormatWin10:
		return "Windows 10"
	}
	return "Unknown Format"
}

var (
	sigCMMM = []byte("CMMM")
	sigIMMM = []byte("IMMM")
)

var (
	// ErrBadSignature marks a file or entry without the expected magic.
	ErrBadSignature = errors.New("cachefile: bad signature")
	// ErrTruncated marks a header or entry running past the file end.
	ErrTruncated = errors.New("cachefile: truncated")
)

// Header is the CMMM file header: 24 bytes, or 28 for the versions after
// Windows 8 up to Windows 8 v2, which carry both the extra field after the
// cache type and the entry count. EntryCount is only present up to
// Windows 8 v2.
type Header struct {
	FormatVersion        uint32
	CacheType            uint32
	FirstEntryOffset     uint32
	FirstAvailableOffset uint32
	EntryCount           uint32
	HasEntryCount        bool
}

// Entry is one CMMM cache entry. Data is nil for dormant placeholder
// entries that reserve an id without payload.
type Entry struct {
	Offset         int64
	Size           uint32
	CacheID        uint64
	Extension      string // stored on Vista only
	IDSize         uint32
	PadSize        uint32
	DataSize       uint32
	Width          uint32 // Windows 8 and later
	Height         uint32
	DataChecksum   uint64
	HeaderChecksum uint64
	ID             string // hex digits of the little-endian cache id
	Data           []byte
	MIME           string
	ChecksumOK     bool
}

// Reader iterates the entries of a CMMM cache file in on-disk order.
type Reader struct {
	Header Header

	r    io.ReaderAt
	size int64
	off  int64
}

// crcTable is shared by entry and index checksum verification. The cache
// uses a 64 bit CRC; verification is best effort on forensic inputs.
var crcTable = crc64.MakeTable(crc64.ECMA)

// NewReader validates the CMMM file header and positions at the first
// entry.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	if size < 24 {
		return nil, errors.Wrapf(ErrTruncated, "file of %d bytes too small for header", size)
	}
	buf := make([]byte, 36)
	n, err := ra.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "cachefile: read failed")
	}
	buf = buf[:n]
	if len(buf) < 24 || !bytes.Equal(buf[:4], sigCMMM) {
		return nil, errors.Wrapf(ErrBadSignature, "want CMMM, got % x", buf[:4])
	}

	h := Header{
		FormatVersion: binary.LittleEndian.Uint32(buf[4:]),
		CacheType:     binary.LittleEndian.Uint32(buf[8:]),
	}
	off := 12
	if h.FormatVersion > FormatWin8 {
		off += 4 // unknown field inserted after the cache type
	}
	h.FirstEntryOffset = binary.LittleEndian.Uint32(buf[off:])
	h.FirstAvailableOffset = binary.LittleEndian.Uint32(buf[off+4:])
	if h.FormatVersion < FormatWin8v3 {
		h.EntryCount = binary.LittleEndian.Uint32(buf[off+8:])
		h.HasEntryCount = true
	}

	return &Reader{Header: h, r: ra, size: size, off: int64(h.FirstEntryOffset)}, nil
}

// Next returns the next cache entry, or io.EOF after the last one.
// Truncated trailing space and unknown bytes after the last entry end
// iteration rather than failing: forensic inputs are routinely cut short.
func (r *Reader) Next() (*Entry, error) {
	for {
		entry, err := r.next()
		if err != nil || entry != nil {
			return entry, err
		}
	}
}

// headerLen returns the on-disk entry header size for the cache format:
// 48 bytes, plus the Vista extension field or the Windows 8+ dimensions.
func (r *Reader) headerLen() int {
	n := 48
	if r.Header.FormatVersion == FormatVista {
		n += 8
	}
	if r.Header.FormatVersion > FormatWin7 {
		n += 8
	}
	return n
}

func (r *Reader) next() (*Entry, error) {
	headerLen := r.headerLen()
	if r.off+int64(headerLen) > r.size {
		return nil, io.EOF
	}
	head := make([]byte, headerLen)
	n, err := r.r.ReadAt(head, r.off)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "cachefile: read failed")
	}
	head = head[:n]
	// Truncated trailing entries end iteration, they never index past the
	// read.
	if len(head) < headerLen || !bytes.Equal(head[:4], sigCMMM) {
		return nil, io.EOF
	}

	e := &Entry{
		Offset:  r.off,
		Size:    binary.LittleEndian.Uint32(head[4:]),
		CacheID: binary.LittleEndian.Uint64(head[8:]),
	}
	off := 16
	if r.Header.FormatVersion == FormatVista {
		ext, err := ole.DecodeUTF16(head[off : off+8])
		if err == nil {
			e.Extension = ext
		}
		off += 8
	}
	e.IDSize = binary.LittleEndian.Uint32(head[off:])
	e.PadSize = binary.LittleEndian.Uint32(head[off+4:])
	e.DataSize = binary.LittleEndian.Uint32(head[off+8:])
	off += 12
	if r.Header.FormatVersion > FormatWin7 {
		e.Width = binary.LittleEndian.Uint32(head[off:])
		e.Height = binary.LittleEndian.Uint32(head[off+4:])
		off += 8
	}
	off += 4 // unknown
	e.DataChecksum = binary.LittleEndian.Uint64(head[off:])
	e.HeaderChecksum = binary.LittleEndian.Uint64(head[off+8:])
	off += 16

	if e.Size == 0 {
		return nil, io.EOF
	}
	next := r.off + int64(e.Size)

	if e.IDSize > 0 {
		id := make([]byte, e.IDSize)
		if _, err := r.r.ReadAt(id, r.off+int64(off)); err != nil {
			return nil, errors.Wrap(ErrTruncated, "entry id")
		}
		decoded, err := ole.DecodeUTF16(id)
		if err == nil {
			e.ID = decoded
		}
	}
	if e.DataSize > 0 {
		data := make([]byte, e.DataSize)
		dataOff := r.off + int64(off) + int64(e.IDSize) + int64(e.PadSize)
		if _, err := r.r.ReadAt(data, dataOff); err != nil {
			return nil, errors.Wrap(ErrTruncated, "entry data")
		}
		e.Data = data
		e.MIME = SniffMIME(data)
		e.ChecksumOK = crc64.Checksum(data, crcTable) == e.DataChecksum
	}
	r.off = next

	// An entry without an id is the empty tail of the cache.
	if e.IDSize == 0 {
		return nil, nil
	}
	return e, nil
}

// SniffMIME identifies a thumbnail payload by its magic bytes. The cache
// stores JPEG and PNG almost exclusively; BMP appears in the wild but is
// rare.
func SniffMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0x42, 0x4D}):
		return "image/bmp"
	}
	return ""
}

// ExtensionForMIME maps a sniffed payload type to the conventional file
// extension used for extracted images.
func ExtensionForMIME(mime string) string {
	switch mime {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/bmp":
		return "bmp"
	}
	return "img"
}
