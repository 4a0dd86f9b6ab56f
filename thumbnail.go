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

package thumbcache

import (
	"time"

	"github.com/google/uuid"
)

// Thumbnail is one recovered thumbnail with whatever metadata its
// container and the Windows Search database yielded. StreamID is set for
// Thumbs.db streams with the old numeric naming, CacheID for thumbcache
// entries and modern Thumbs.db streams; a zero value means the field does
// not apply. Data is nil for dormant cache entries.
type Thumbnail struct {
	ID           string    `json:"id" structs:"id"`
	Source       string    `json:"source" structs:"source"`
	StreamID     uint32    `json:"stream_id,omitempty" structs:"stream_id"`
	CacheID      uint64    `json:"cache_id,omitempty" structs:"cache_id"`
	OriginalName string    `json:"original_name,omitempty" structs:"original_name"`
	Path         string    `json:"path,omitempty" structs:"path"`
	Width        uint32    `json:"width,omitempty" structs:"width"`
	Height       uint32    `json:"height,omitempty" structs:"height"`
	Modified     time.Time `json:"mtime,omitempty" structs:"mtime"`
	MIME         string    `json:"image_mime,omitempty" structs:"image_mime"`
	Data         []byte    `json:"-" structs:"-"`
}

// NewThumbnail creates a thumbnail record with a fresh id.
func NewThumbnail() *Thumbnail {
	return &Thumbnail{ID: "thumbnail--" + uuid.New().String()}
}

// Sink consumes extracted thumbnails. Write is called once per thumbnail
// in container order; a failing write aborts the input.
type Sink interface {
	Write(t *Thumbnail) error
}

// MemorySink collects thumbnails in memory, mainly for tests.
type MemorySink struct {
	Thumbnails []*Thumbnail
}

// Write appends the thumbnail.
func (m *MemorySink) Write(t *Thumbnail) error {
	m.Thumbnails = append(m.Thumbnails, t)
	return nil
}
