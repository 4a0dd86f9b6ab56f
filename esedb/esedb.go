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

// Package esedb builds a read-only view over the Windows Search database
// (Windows.edb). The Windows indexer stores the Thumb Cache ID alongside
// file metadata, so rows joined by that id recover original names and
// timestamps for thumbcache entries.
package esedb

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-ese/parser"

	"github.com/forensicanalysis/thumbcache/filetime"
)

// Property store tables by Windows generation.
var propertyStoreTables = []string{
	"SystemIndex_PropertyStore", // Windows 8 and later
	"SystemIndex_0A",            // Windows Vista and 7
}

var (
	// ErrUnreadable marks a database that cannot be opened or parsed,
	// commonly because it is locked or corrupt.
	ErrUnreadable = errors.New("esedb: database unreadable")
	// ErrSchemaMissing marks a database without a property store table.
	ErrSchemaMissing = errors.New("esedb: no property store table")
)

// Row is the metadata extracted from one property store row.
type Row struct {
	CacheID     uint64    `json:"thumbnail_cache_id"`
	ItemName    string    `json:"item_name,omitempty"`
	FileName    string    `json:"file_name,omitempty"`
	Extension   string    `json:"file_extension,omitempty"`
	Path        string    `json:"item_path_display,omitempty"`
	URL         string    `json:"item_url,omitempty"`
	MIME        string    `json:"mime_type,omitempty"`
	Size        int64     `json:"size,omitempty"`
	Modified    time.Time `json:"date_modified,omitempty"`
	Created     time.Time `json:"date_created,omitempty"`
	Accessed    time.Time `json:"date_accessed,omitempty"`
	ImageWidth  int64     `json:"image_horizontal_size,omitempty"`
	ImageHeight int64     `json:"image_vertical_size,omitempty"`
}

// Name returns the best file name the row offers: the item name, then the
// file name, then the last path or URL element.
func (r *Row) Name() string {
	if r.ItemName != "" {
		return r.ItemName
	}
	if r.FileName != "" {
		return r.FileName
	}
	for _, source := range []string{r.Path, r.URL} {
		if source == "" {
			continue
		}
		source = strings.TrimRight(strings.ReplaceAll(source, "\\", "/"), "/")
		if i := strings.LastIndex(source, "/"); i >= 0 {
			source = source[i+1:]
		}
		if j := strings.Index(source, "?"); j >= 0 {
			source = source[:j]
		}
		if source != "" {
			return source
		}
	}
	return ""
}

// View is an in-memory index of property store rows by Thumb Cache ID.
// The database handle is released as soon as the view is built.
type View struct {
	table string
	rows  map[uint64]*Row
}

// NewView builds a view from already extracted rows, bypassing the
// database. Used by tests and callers with out-of-band metadata.
func NewView(table string, rows []*Row) *View {
	v := &View{table: table, rows: make(map[uint64]*Row, len(rows))}
	for _, r := range rows {
		if r.CacheID == 0 {
			continue
		}
		if _, ok := v.rows[r.CacheID]; !ok {
			v.rows[r.CacheID] = r
		}
	}
	return v
}

// Open reads the database at path and indexes every row carrying a
// thumbnail cache id. Rows without one are skipped.
func Open(path string) (*View, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(ErrUnreadable, err.Error())
	}
	defer f.Close()
	return Read(f)
}

// Read builds a view from an already opened database.
func Read(ra io.ReaderAt) (*View, error) {
	ctx, err := parser.NewESEContext(ra)
	if err != nil {
		return nil, errors.Wrap(ErrUnreadable, err.Error())
	}
	catalog, err := parser.ReadCatalog(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrUnreadable, err.Error())
	}

	table := ""
	for _, candidate := range propertyStoreTables {
		if _, ok := catalog.Tables.Get(candidate); ok {
			table = candidate
			break
		}
	}
	if table == "" {
		return nil, errors.Wrapf(ErrSchemaMissing, "tables: %s", strings.Join(catalog.Tables.Keys(), ", "))
	}

	v := &View{table: table, rows: map[uint64]*Row{}}
	err = catalog.DumpTable(table, func(row *ordereddict.Dict) error {
		r := parseRow(row)
		if r == nil {
			return nil
		}
		// First writer wins; duplicate ids in the index keep the
		// earliest row, matching on-disk order.
		if _, ok := v.rows[r.CacheID]; !ok {
			v.rows[r.CacheID] = r
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrUnreadable, err.Error())
	}
	return v, nil
}

// Table returns the property store table the view was built from.
func (v *View) Table() string { return v.table }

// Len returns the number of indexed rows.
func (v *View) Len() int { return len(v.rows) }

// Lookup finds the row for a cache id.
func (v *View) Lookup(id uint64) (*Row, bool) {
	r, ok := v.rows[id]
	return r, ok
}

// parseRow extracts the interesting columns of a property store row.
// Column names carry a numeric property id prefix ("4670-System_..."), so
// matching is by suffix. Returns nil if the row has no cache id.
func parseRow(row *ordereddict.Dict) *Row {
	r := &Row{}
	for _, key := range row.Keys() {
		value, _ := row.Get(key)
		switch {
		case matchColumn(key, "System_ThumbnailCacheId"):
			if id, ok := coerceCacheID(value); ok {
				r.CacheID = id
			}
		case matchColumn(key, "System_ItemName"):
			r.ItemName = coerceString(value)
		case matchColumn(key, "System_FileName"):
			r.FileName = coerceString(value)
		case matchColumn(key, "System_FileExtension"):
			r.Extension = coerceString(value)
		case matchColumn(key, "System_ItemPathDisplay"):
			r.Path = coerceString(value)
		case matchColumn(key, "System_ItemUrl"):
			r.URL = coerceString(value)
		case matchColumn(key, "System_MIMEType"):
			r.MIME = coerceString(value)
		case matchColumn(key, "System_Size"):
			r.Size, _ = coerceInt(value)
		case matchColumn(key, "System_DateModified"):
			r.Modified = coerceTime(value)
		case matchColumn(key, "System_DateCreated"):
			r.Created = coerceTime(value)
		case matchColumn(key, "System_DateAccessed"):
			r.Accessed = coerceTime(value)
		case matchColumn(key, "System_Image_HorizontalSize"):
			r.ImageWidth, _ = coerceInt(value)
		case matchColumn(key, "System_Image_VerticalSize"):
			r.ImageHeight, _ = coerceInt(value)
		}
	}
	if r.CacheID == 0 {
		return nil
	}
	return r
}

func matchColumn(key, name string) bool {
	return key == name || strings.HasSuffix(key, "-"+name)
}

// coerceCacheID accepts the cache id as raw little-endian bytes, a hex
// string, or an integer, whatever the column reader produced.
func coerceCacheID(v interface{}) (uint64, bool) {
	switch value := v.(type) {
	case []byte:
		if len(value) < 8 {
			padded := make([]byte, 8)
			copy(padded, value)
			value = padded
		}
		return binary.LittleEndian.Uint64(value[:8]), true
	case string:
		value = strings.TrimSpace(value)
		if raw, err := hex.DecodeString(value); err == nil && len(raw) >= 8 {
			return binary.LittleEndian.Uint64(raw[:8]), true
		}
	case int64:
		return uint64(value), true
	case uint64:
		return value, true
	}
	return 0, false
}

func coerceString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return strings.TrimRight(value, "\x00")
	case []byte:
		return strings.TrimRight(string(value), "\x00")
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func coerceInt(v interface{}) (int64, bool) {
	switch value := v.(type) {
	case int:
		return int64(value), true
	case int32:
		return int64(value), true
	case int64:
		return value, true
	case uint32:
		return int64(value), true
	case uint64:
		return int64(value), true
	case float64:
		return int64(value), true
	case []byte:
		if len(value) >= 8 {
			return int64(binary.LittleEndian.Uint64(value[:8])), true
		}
	}
	return 0, false
}

func coerceTime(v interface{}) time.Time {
	switch value := v.(type) {
	case time.Time:
		return value.UTC()
	case []byte:
		if len(value) >= 8 {
			return filetime.ToTime(binary.LittleEndian.Uint64(value[:8]))
		}
	case int64:
		return filetime.ToTime(uint64(value))
	case uint64:
		return filetime.ToTime(value)
	}
	return time.Time{}
}
