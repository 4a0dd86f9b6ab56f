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

package report

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/thumbcache"
)

func sampleReport() *Report {
	r := New("Thumbs.db", "OLE (Thumb.db)")
	r.MD5 = "d41d8cd98f00b204e9800998ecf8427e"
	thumb := thumbcache.NewThumbnail()
	thumb.Source = "Thumbs.db"
	thumb.StreamID = 7
	thumb.OriginalName = "photo.jpg"
	thumb.MIME = "image/jpeg"
	thumb.Modified = time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	thumb.Data = []byte{0xFF, 0xD8, 0xFF, 0xD9}
	r.Add(thumb, "0000000001.jpg")
	r.Warn("stream 3 skipped")
	return r
}

func TestWriteJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := sampleReport()
	require.NoError(t, r.WriteJSON(fs, "out"))

	data, err := afero.ReadFile(fs, "out/"+ManifestName)
	require.NoError(t, err)

	assert.Equal(t, "Thumbs.db", gjson.GetBytes(data, "source").String())
	assert.Equal(t, "0000000001.jpg", gjson.GetBytes(data, "thumbnails.0.file_name").String())
	assert.Equal(t, "photo.jpg", gjson.GetBytes(data, "thumbnails.0.fields.original_name").String())
	assert.EqualValues(t, 7, gjson.GetBytes(data, "thumbnails.0.fields.stream_id").Int())
	assert.False(t, gjson.GetBytes(data, "thumbnails.0.fields.data").Exists(), "image bytes stay out of the manifest")
	assert.False(t, gjson.GetBytes(data, "thumbnails.0.fields.cache_id").Exists(), "zero fields are dropped")
	assert.Equal(t, "stream 3 skipped", gjson.GetBytes(data, "warnings.0").String())

	flaws, err := ValidateManifest(data)
	require.NoError(t, err)
	assert.Empty(t, flaws)
}

func TestWriteHTML(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := sampleReport()
	require.NoError(t, r.WriteHTML(fs, "out"))

	data, err := afero.ReadFile(fs, "out/"+HTMLName)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "0000000001.jpg")
	assert.Contains(t, html, "original_name")
	assert.Contains(t, html, "stream 3 skipped")
}

func TestValidateManifestFlaws(t *testing.T) {
	flaws, err := ValidateManifest([]byte(`{"container": "x", "thumbnails": []}`))
	require.NoError(t, err)
	assert.NotEmpty(t, flaws)
}
