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

package ole

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/thumbcache/ole/oletest"
)

func TestNew(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, 5000)
	small := []byte("hello ministream")
	raw := oletest.Build(
		oletest.Stream{Name: "1", Data: big},
		oletest.Stream{Name: "Catalog", Data: small},
	)

	r, err := New(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	root := r.Root()
	assert.Equal(t, "Root Entry", root.Name)
	assert.Equal(t, TypeRoot, root.Type)

	for _, entry := range r.Entries()[1:] {
		assert.Contains(t, []EntryType{TypeEmpty, TypeStream}, entry.Type)
	}

	got, err := r.StreamByName("1")
	require.NoError(t, err)
	assert.Equal(t, big, got)

	got, err = r.StreamByName("Catalog")
	require.NoError(t, err)
	assert.Equal(t, small, got)
}

func TestNewInverted(t *testing.T) {
	data := bytes.Repeat([]byte{0x11, 0x22}, 3000)
	raw := oletest.Invert(oletest.Build(oletest.Stream{Name: "2", Data: data}))

	r, err := New(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	assert.True(t, r.Inverted)

	got, err := r.StreamByName("2")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNewBadSignature(t *testing.T) {
	raw := oletest.Build()
	raw[0] = 0x00
	_, err := New(bytes.NewReader(raw), int64(len(raw)))
	assert.Equal(t, ErrBadSignature, errors.Cause(err))

	_, err = New(bytes.NewReader(nil), 0)
	assert.Equal(t, ErrBadSignature, errors.Cause(err))
}

func TestNewBadHeader(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		value  uint16
	}{
		{"major version", 26, 7},
		{"sector shift", 30, 10},
		{"mini sector shift", 32, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := oletest.Build(oletest.Stream{Name: "1", Data: []byte("x")})
			binary.LittleEndian.PutUint16(raw[tt.offset:], tt.value)
			_, err := New(bytes.NewReader(raw), int64(len(raw)))
			assert.Equal(t, ErrBadHeader, errors.Cause(err))
		})
	}
}

func TestChainCycle(t *testing.T) {
	raw := oletest.Build(oletest.Stream{Name: "1", Data: bytes.Repeat([]byte{1}, 5000)})
	// Point the first stream sector back at itself.
	r, err := New(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	entry, err := r.FindEntry("1")
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(raw[512+int(entry.StartSector)*4:], entry.StartSector)

	r, err = New(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	_, err = r.StreamByName("1")
	assert.Equal(t, ErrCorruptChain, errors.Cause(err))
}

func TestChainsTerminate(t *testing.T) {
	raw := oletest.Build(
		oletest.Stream{Name: "0", Data: bytes.Repeat([]byte{7}, 4100)},
		oletest.Stream{Name: "1", Data: []byte("mini one")},
		oletest.Stream{Name: "2", Data: bytes.Repeat([]byte{9}, 200)},
	)
	r, err := New(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	for i := range r.Entries() {
		entry := &r.Entries()[i]
		if entry.Type != TypeStream || entry.Size == 0 {
			continue
		}
		mini := entry.Size < 4096
		sectors, err := r.chain(entry.StartSector, mini)
		require.NoError(t, err, entry.Name)
		assert.NotEmpty(t, sectors)
	}
}

func TestFindEntryMissing(t *testing.T) {
	raw := oletest.Build(oletest.Stream{Name: "1", Data: []byte("x")})
	r, err := New(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	_, err = r.FindEntry("nope")
	assert.Equal(t, ErrBadDirectory, errors.Cause(err))
}

func TestDecodeUTF16(t *testing.T) {
	got, err := DecodeUTF16([]byte{'C', 0, 'a', 0, 't', 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, "Cat", got)
}
