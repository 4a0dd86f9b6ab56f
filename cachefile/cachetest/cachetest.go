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

// Package cachetest builds thumbcache fixture files in memory for tests.
package cachetest

import (
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"unicode/utf16"
)

var crcTable = crc64.MakeTable(crc64.ECMA)

// Entry describes a cache entry to encode.
type Entry struct {
	CacheID uint64
	Data    []byte
}

// BuildCMMM assembles a thumbcache_*.db with the given format version,
// cache type and entries. Entry sizes are padded to 8 byte alignment.
func BuildCMMM(format, cacheType uint32, entries ...Entry) []byte {
	headerLen := 24
	if format > 0x1A {
		headerLen = 28
	}
	out := make([]byte, headerLen)
	copy(out, "CMMM")
	binary.LittleEndian.PutUint32(out[4:], format)
	binary.LittleEndian.PutUint32(out[8:], cacheType)
	off := 12
	if format > 0x1A {
		off += 4
	}
	binary.LittleEndian.PutUint32(out[off:], uint32(headerLen)) // first entry
	if format < 0x1E {
		binary.LittleEndian.PutUint32(out[off+8:], uint32(len(entries)))
	}

	for _, e := range entries {
		out = append(out, buildEntry(format, e)...)
	}
	binary.LittleEndian.PutUint32(out[off+4:], uint32(len(out))) // first available
	return out
}

func buildEntry(format uint32, e Entry) []byte {
	// The id is the lowercase hex cache id, stored as UTF-16LE.
	idRunes := utf16.Encode([]rune(fmt.Sprintf("%016x", e.CacheID)))
	id := make([]byte, len(idRunes)*2)
	for i, u := range idRunes {
		binary.LittleEndian.PutUint16(id[i*2:], u)
	}

	headerLen := 48
	if format == 0x14 {
		headerLen += 8 // extension
	}
	if format > 0x15 {
		headerLen += 8 // width, height
	}
	content := headerLen + len(id) + len(e.Data)
	size := (content + 7) &^ 7 // alignment tail stays zero after the data
	padSize := 0
	dataSize := len(e.Data)

	out := make([]byte, size)
	copy(out, "CMMM")
	binary.LittleEndian.PutUint32(out[4:], uint32(size))
	binary.LittleEndian.PutUint64(out[8:], e.CacheID)
	off := 16
	if format == 0x14 {
		ext := utf16.Encode([]rune("jpg\x00"))
		for i, u := range ext {
			binary.LittleEndian.PutUint16(out[off+i*2:], u)
		}
		off += 8
	}
	binary.LittleEndian.PutUint32(out[off:], uint32(len(id)))
	binary.LittleEndian.PutUint32(out[off+4:], uint32(padSize))
	binary.LittleEndian.PutUint32(out[off+8:], uint32(dataSize))
	off += 12
	if format > 0x15 {
		binary.LittleEndian.PutUint32(out[off:], 256)
		binary.LittleEndian.PutUint32(out[off+4:], 256)
		off += 8
	}
	off += 4 // unknown
	binary.LittleEndian.PutUint64(out[off:], crc64.Checksum(e.Data, crcTable))
	off += 16 // data checksum, header checksum left zero
	copy(out[off:], id)
	copy(out[off+len(id):], e.Data)
	return out
}

// IndexEntry describes one IMMM record to encode.
type IndexEntry struct {
	CacheID uint64
	Flags   uint32
	Offsets map[string]uint32 // bucket name → offset, missing means unused
}

// BuildIMMM assembles a thumbcache_idx.db for the given format version.
func BuildIMMM(format uint32, entries ...IndexEntry) []byte {
	out := make([]byte, 24)
	copy(out, "IMMM")
	binary.LittleEndian.PutUint32(out[4:], format)
	binary.LittleEndian.PutUint32(out[12:], uint32(len(entries)))
	binary.LittleEndian.PutUint32(out[16:], uint32(len(entries)))
	binary.LittleEndian.PutUint32(out[20:], uint32(len(entries)))
	if format == 0x20 {
		out = append(out, make([]byte, 116)...)
	}

	for _, e := range entries {
		rec := make([]byte, 12)
		binary.LittleEndian.PutUint64(rec, e.CacheID)
		if format == 0x14 {
			rec = append(rec, make([]byte, 8)...) // FILETIME
			binary.LittleEndian.PutUint32(rec[16:], e.Flags)
		} else {
			binary.LittleEndian.PutUint32(rec[8:], e.Flags)
		}
		for _, name := range bucketOrder(format) {
			off, ok := e.Offsets[name]
			if !ok {
				off = 0xFFFFFFFF
			}
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], off)
			rec = append(rec, b[:]...)
		}
		out = append(out, rec...)
	}
	return out
}

func bucketOrder(format uint32) []string {
	var out []string
	add := func(name string, ok bool) {
		if ok {
			out = append(out, name)
		}
	}
	add("16", format > 0x15)
	add("32", true)
	add("48", format > 0x15)
	add("96", true)
	add("256", true)
	add("768", format > 0x1F)
	add("1024", true)
	add("1280", format > 0x1F)
	add("1600", format == 0x1F)
	add("1920", format > 0x1F)
	add("2560", format > 0x1F)
	add("sr", true)
	add("wide", format > 0x15)
	add("exif", format > 0x15)
	add("wide_alternate", format > 0x1E)
	add("custom_stream", format > 0x1F)
	return out
}
