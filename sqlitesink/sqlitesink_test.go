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

package sqlitesink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/thumbcache"
)

func TestStore(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	thumb := thumbcache.NewThumbnail()
	thumb.Source = "Thumbs.db"
	thumb.StreamID = 1
	thumb.MIME = "image/jpeg"
	thumb.Data = []byte{0xFF, 0xD8, 0xFF, 0xD9}
	require.NoError(t, store.Write(thumb))

	second := thumbcache.NewThumbnail()
	second.Source = "thumbcache_256.db"
	second.CacheID = 42
	require.NoError(t, store.Write(second))

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 2)

	sources := []string{
		gjson.Get(all[0], "source").String(),
		gjson.Get(all[1], "source").String(),
	}
	assert.Contains(t, sources, "Thumbs.db")
	assert.Contains(t, sources, "thumbcache_256.db")
}
