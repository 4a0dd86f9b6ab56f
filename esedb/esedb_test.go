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

package esedb

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/thumbcache/filetime"
)

func cacheIDBytes(id uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, id)
	return out
}

func TestParseRow(t *testing.T) {
	mtime := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	row := ordereddict.NewDict().
		Set("4670-System_ThumbnailCacheId", cacheIDBytes(0x1A2B3C4D5E6F7080)).
		Set("4443-System_ItemPathDisplay", "C:\\Users\\x\\a.png").
		Set("11-System_FileName", "a.png").
		Set("4388-System_FileExtension", ".png").
		Set("4468-System_MIMEType", "image/png").
		Set("13F-System_Size", []byte{0x10, 0, 0, 0, 0, 0, 0, 0}).
		Set("15F-System_DateModified", cacheIDBytes(filetime.FromTime(mtime))).
		Set("4418-System_Image_HorizontalSize", int64(96))

	r := parseRow(row)
	require.NotNil(t, r)
	assert.Equal(t, uint64(0x1A2B3C4D5E6F7080), r.CacheID)
	assert.Equal(t, "C:\\Users\\x\\a.png", r.Path)
	assert.Equal(t, "a.png", r.FileName)
	assert.Equal(t, ".png", r.Extension)
	assert.Equal(t, "image/png", r.MIME)
	assert.EqualValues(t, 16, r.Size)
	assert.Equal(t, mtime, r.Modified)
	assert.EqualValues(t, 96, r.ImageWidth)
	assert.Equal(t, "a.png", r.Name())
}

func TestParseRowSkipsWithoutCacheID(t *testing.T) {
	row := ordereddict.NewDict().Set("11-System_FileName", "a.png")
	assert.Nil(t, parseRow(row))
}

func TestRowName(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want string
	}{
		{"item name wins", Row{ItemName: "x.jpg", FileName: "y.jpg"}, "x.jpg"},
		{"file name", Row{FileName: "y.jpg"}, "y.jpg"},
		{"path tail", Row{Path: "C:\\Users\\x\\photo.jpg"}, "photo.jpg"},
		{"url tail", Row{URL: "file://host/share/pic.png?v=1"}, "pic.png"},
		{"empty", Row{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.row.Name())
		})
	}
}

func TestCoerceCacheID(t *testing.T) {
	id, ok := coerceCacheID(cacheIDBytes(42))
	require.True(t, ok)
	assert.EqualValues(t, 42, id)

	id, ok = coerceCacheID("8070 6f5e4d3c2b1a")
	assert.False(t, ok) // spaces are not hex

	id, ok = coerceCacheID("80706f5e4d3c2b1a")
	require.True(t, ok)
	assert.Equal(t, uint64(0x1A2B3C4D5E6F7080), id)

	_, ok = coerceCacheID(nil)
	assert.False(t, ok)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open("/nonexistent/Windows.edb")
	assert.Equal(t, ErrUnreadable, errors.Cause(err))
}
