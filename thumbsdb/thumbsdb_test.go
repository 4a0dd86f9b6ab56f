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

package thumbsdb

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/thumbcache/filetime"
)

// catalogRecord encodes one catalog record: length, stream id, FILETIME,
// UTF-16LE name with NUL, four trailing zero bytes.
func catalogRecord(id uint32, mtime time.Time, name string) []byte {
	units := utf16.Encode([]rune(name))
	length := 16 + (len(units)+1)*2 + 4
	out := make([]byte, length)
	binary.LittleEndian.PutUint32(out, uint32(length))
	binary.LittleEndian.PutUint32(out[4:], id)
	binary.LittleEndian.PutUint64(out[8:], filetime.FromTime(mtime))
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[16+i*2:], u)
	}
	return out
}

func catalogStream(records ...[]byte) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint16(out, 16)
	binary.LittleEndian.PutUint16(out[2:], 7)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(records)))
	binary.LittleEndian.PutUint32(out[8:], 96)
	binary.LittleEndian.PutUint32(out[12:], 96)
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}

func TestDecodeCatalog(t *testing.T) {
	mtime := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	data := catalogStream(
		catalogRecord(1, mtime, "photo.jpg"),
		catalogRecord(2, mtime.Add(time.Hour), "vacation.png"),
	)

	c, err := DecodeCatalog(data)
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.Count)
	assert.EqualValues(t, 96, c.LargestWidth)
	require.Len(t, c.Entries, 2)
	assert.Equal(t, "photo.jpg", c.Entries[0].Name)
	assert.Equal(t, mtime, c.Entries[0].Modified)
	assert.EqualValues(t, 1, c.Entries[0].StreamID)
	assert.False(t, c.OutOfSequence())

	entry, ok := c.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "vacation.png", entry.Name)
	_, ok = c.Lookup(9)
	assert.False(t, ok)
}

func TestDecodeCatalogOutOfSequence(t *testing.T) {
	data := catalogStream(catalogRecord(7, time.Now().UTC(), "late.jpg"))
	c, err := DecodeCatalog(data)
	require.NoError(t, err)
	assert.True(t, c.OutOfSequence())
}

func TestDecodeCatalogTruncated(t *testing.T) {
	data := catalogStream(catalogRecord(1, time.Now().UTC(), "a.jpg"))
	binary.LittleEndian.PutUint32(data[16:], uint32(len(data)+10))
	_, err := DecodeCatalog(data)
	assert.Equal(t, ErrCatalogTruncated, errors.Cause(err))
}

func TestFiletimeRoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC),
		time.Date(1601, 1, 1, 0, 0, 0, 100, time.UTC),
		time.Date(2038, 1, 19, 3, 14, 7, 0, time.UTC),
	}
	for _, want := range times {
		ft := filetime.FromTime(want)
		assert.Equal(t, ft, filetime.FromTime(filetime.ToTime(ft)))
	}
}

func TestStreamIDForName(t *testing.T) {
	tests := []struct {
		name   string
		wantID uint32
		wantOK bool
	}{
		{"24", 42, true},
		{"1", 1, true},
		{"001", 100, true},
		{"1234", 0, false},
		{"Catalog", 0, false},
		{"", 0, false},
		{"256_abc", 0, false},
	}
	for _, tt := range tests {
		id, ok := StreamIDForName(tt.name)
		assert.Equal(t, tt.wantOK, ok, tt.name)
		if ok {
			assert.Equal(t, tt.wantID, id, tt.name)
		}
	}
}

func TestNameForStreamID(t *testing.T) {
	assert.Equal(t, "24", NameForStreamID(42))
	assert.Equal(t, "1", NameForStreamID(1))
	assert.Equal(t, "0", NameForStreamID(0))
	id, ok := StreamIDForName(NameForStreamID(713))
	require.True(t, ok)
	assert.EqualValues(t, 713, id)
}

// minimalJPEG is a syntactically framed JPEG payload for stream fixtures.
func minimalJPEG() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x04, 0x01, 0x02, 0xFF, 0xD9}
}

// genAStream builds a generation A stream: 12 byte first header, 16 byte
// second header, payload.
func genAStream(typ, width, height uint32, payload []byte) []byte {
	out := make([]byte, 0x1C+len(payload))
	binary.LittleEndian.PutUint32(out, 0x0C)
	binary.LittleEndian.PutUint32(out[4:], 0x10)
	binary.LittleEndian.PutUint32(out[12:], typ)
	binary.LittleEndian.PutUint32(out[16:], width)
	binary.LittleEndian.PutUint32(out[20:], height)
	binary.LittleEndian.PutUint32(out[24:], uint32(len(payload)))
	copy(out[28:], payload)
	return out
}

// genBStream builds a generation B stream: single header declaring length
// 0x18, 28 bytes with the trailing checksum, payload always a complete JPEG.
func genBStream(width, height uint32, payload []byte) []byte {
	out := make([]byte, 28+len(payload))
	binary.LittleEndian.PutUint32(out, 0x18)
	binary.LittleEndian.PutUint32(out[4:], 28)
	binary.LittleEndian.PutUint32(out[8:], width)
	binary.LittleEndian.PutUint32(out[12:], height)
	binary.LittleEndian.PutUint32(out[16:], uint32(len(payload)))
	binary.LittleEndian.PutUint64(out[20:], 0xDEADBEEF)
	copy(out[28:], payload)
	return out
}

func TestDecodeStreamGenAType2(t *testing.T) {
	img, err := DecodeStream(genAStream(2, 96, 64, minimalJPEG()))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Type)
	assert.EqualValues(t, 96, img.Width)
	assert.EqualValues(t, 64, img.Height)
	assert.Equal(t, "image/jpeg", img.MIME)
	assert.Equal(t, minimalJPEG(), img.Data)
}

func TestDecodeStreamGenAType1(t *testing.T) {
	scan := bytes.Repeat([]byte{0x5A}, 4096)
	img, err := DecodeStream(genAStream(1, 96, 96, scan))
	require.NoError(t, err)
	assert.Equal(t, 1, img.Type)
	assert.True(t, bytes.HasPrefix(img.Data, []byte{0xFF, 0xD8}))
	assert.True(t, bytes.HasSuffix(img.Data, []byte{0xFF, 0xD9}))
}

func TestDecodeStreamGenB(t *testing.T) {
	img, err := DecodeStream(genBStream(256, 256, minimalJPEG()))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Type)
	assert.Equal(t, minimalJPEG(), img.Data)
}

func TestDecodeStreamLengthMismatch(t *testing.T) {
	data := genAStream(2, 96, 96, minimalJPEG())
	binary.LittleEndian.PutUint32(data[24:], 9999)
	_, err := DecodeStream(data)
	assert.Equal(t, ErrEntryLengthMismatch, errors.Cause(err))

	data = genBStream(96, 96, minimalJPEG())
	binary.LittleEndian.PutUint32(data[16:], 1)
	_, err = DecodeStream(data)
	assert.Equal(t, ErrEntryLengthMismatch, errors.Cause(err))
}

func TestDecodeStreamMissingEOI(t *testing.T) {
	payload := minimalJPEG()
	payload[len(payload)-1] = 0x00
	_, err := DecodeStream(genAStream(2, 96, 96, payload))
	assert.Equal(t, ErrMissingEOI, errors.Cause(err))
}

func TestDecodeStreamUnknownHeader(t *testing.T) {
	data := make([]byte, 32)
	binary.LittleEndian.PutUint32(data, 0x99)
	_, err := DecodeStream(data)
	assert.Equal(t, ErrUnknownHeader, errors.Cause(err))

	_, err = DecodeStream([]byte{1, 2})
	assert.Equal(t, ErrUnknownHeader, errors.Cause(err))
}

// countMarkers walks the marker segments before the scan and counts
// occurrences of the given marker byte.
func countMarkers(t *testing.T, data []byte, marker byte) int {
	t.Helper()
	count := 0
	i := 2 // skip SOI
	for i+4 <= len(data) {
		require.Equal(t, byte(0xFF), data[i])
		if data[i+1] == marker {
			count++
		}
		length := int(data[i+2])<<8 | int(data[i+3])
		if data[i+1] == 0xDA {
			break // scan follows, stop walking
		}
		i += 2 + length
	}
	return count
}

func TestReconstructType1Structure(t *testing.T) {
	scan := bytes.Repeat([]byte{0x33}, 1000)
	jpeg, err := ReconstructType1(scan, 96, 96)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(jpeg, []byte{0xFF, 0xD8}))
	assert.True(t, bytes.HasSuffix(jpeg, []byte{0xFF, 0xD9}))
	assert.Equal(t, 1, countMarkers(t, jpeg, 0xC0), "SOF0 count")
	assert.GreaterOrEqual(t, countMarkers(t, jpeg, 0xDB), 2, "DQT count")
	assert.GreaterOrEqual(t, countMarkers(t, jpeg, 0xC4), 4, "DHT count")

	// The frame header declares four components with the CMYK
	// quantization table assignment {0,1,1,0}.
	sof := bytes.Index(jpeg, []byte{0xFF, 0xC0})
	require.NotEqual(t, -1, sof)
	assert.Equal(t, byte(4), jpeg[sof+9], "component count")
	assert.Equal(t, byte(0), jpeg[sof+12], "component 1 quant table")
	assert.Equal(t, byte(1), jpeg[sof+15], "component 2 quant table")
	assert.Equal(t, byte(1), jpeg[sof+18], "component 3 quant table")
	assert.Equal(t, byte(0), jpeg[sof+21], "component 4 quant table")

	// Dimensions land in the frame header.
	assert.Equal(t, byte(0), jpeg[sof+5])
	assert.Equal(t, byte(96), jpeg[sof+6])
	assert.Equal(t, byte(0), jpeg[sof+7])
	assert.Equal(t, byte(96), jpeg[sof+8])
}

func TestReconstructType1Empty(t *testing.T) {
	_, err := ReconstructType1(nil, 96, 96)
	assert.Equal(t, ErrEmptyScan, errors.Cause(err))
}
