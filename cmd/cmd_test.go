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
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/thumbcache"
	"github.com/forensicanalysis/thumbcache/report"
)

func TestCommandArgValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no input", []string{}},
		{"two inputs", []string{"a", "b"}},
		{"explore without esedb", []string{"-i"}},
		{"unknown flag", []string{"--frobnicate", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := Command()
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, errArgument, errors.Cause(err))
		})
	}
}

func TestCommandBadMode(t *testing.T) {
	cmd := Command()
	cmd.SetArgs([]string{"-m", "x", "-q", "whatever"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, thumbcache.ErrMode, errors.Cause(err))
	assert.Equal(t, thumbcache.ExitMode, thumbcache.ExitCode(err))
}

func TestCommandMissingInput(t *testing.T) {
	cmd := Command()
	cmd.SetArgs([]string{"-q", "/nonexistent/Thumbs.db"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, thumbcache.ExitInput, thumbcache.ExitCode(err))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		utf8 bool
		want string
	}{
		{"photo.jpg", false, "photo.jpg"},
		{"dir/photo.jpg", false, "dir_photo.jpg"},
		{"dir\\photo.jpg", true, "dir_photo.jpg"},
		{"日本.jpg", true, "日本.jpg"},
		{"日本.jpg", false, "%65E5%672C.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeName(tt.in, tt.utf8), tt.in)
	}
}

func TestDirSinkWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := newDirSink(fs, "out", false, true)
	sink.beginInput("Thumbs.db", thumbcache.ContainerOLE.String())

	thumb := thumbcache.NewThumbnail()
	thumb.MIME = "image/jpeg"
	thumb.Data = []byte{0xFF, 0xD8, 0xFF, 0xD9}
	require.NoError(t, sink.Write(thumb))

	dormant := thumbcache.NewThumbnail()
	require.NoError(t, sink.Write(dormant))

	data, err := afero.ReadFile(fs, "out/0000000001.jpg")
	require.NoError(t, err)
	assert.Equal(t, thumb.Data, data)

	// The dormant entry creates no numbered file.
	exists, err := afero.Exists(fs, "out/0000000002.img")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, sink.writeReports())
	ok, err := afero.Exists(fs, "out/index.html")
	require.NoError(t, err)
	assert.True(t, ok)

	// The manifest written by the sink must satisfy its own schema,
	// container family included.
	manifest, err := afero.ReadFile(fs, "out/report.json")
	require.NoError(t, err)
	assert.Equal(t, thumbcache.ContainerOLE.String(), gjson.GetBytes(manifest, "container").String())
	flaws, err := report.ValidateManifest(manifest)
	require.NoError(t, err)
	assert.Empty(t, flaws)
}

func TestIsCacheFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "cache/thumbcache_256.db", []byte("CMMM1234andmore"), 0644))
	require.NoError(t, afero.WriteFile(fs, "cache/notes.txt", []byte("just some text"), 0644))
	require.NoError(t, afero.WriteFile(fs, "cache/short", []byte("x"), 0644))

	assert.True(t, isCacheFile(fs, "cache/thumbcache_256.db"))
	assert.False(t, isCacheFile(fs, "cache/notes.txt"))
	assert.False(t, isCacheFile(fs, "cache/short"))
	assert.False(t, isCacheFile(fs, "cache/missing"))
}

func TestDiscoverESEDB(t *testing.T) {
	fs := afero.NewMemMapFs()
	assert.Empty(t, discoverESEDB(fs, "mnt"))

	edb := "mnt/ProgramData/Microsoft/Search/Data/Applications/Windows/Windows.edb"
	require.NoError(t, afero.WriteFile(fs, edb, []byte("not a real edb"), 0644))
	assert.Equal(t, edb, discoverESEDB(fs, "mnt"))
}

func TestMultiSink(t *testing.T) {
	a, b := &thumbcache.MemorySink{}, &thumbcache.MemorySink{}
	sink := multiSink{a, b}
	thumb := thumbcache.NewThumbnail()
	require.NoError(t, sink.Write(thumb))
	assert.Len(t, a.Thumbnails, 1)
	assert.Len(t, b.Thumbnails, 1)
}
