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

// Package sqlitesink stores extracted thumbnails in a single SQLite
// database: metadata as JSON, image bytes as blobs. Evidence collected
// from many inputs stays queryable in one file.
package sqlitesink

import (
	"encoding/json"
	"time"

	"crawshaw.io/sqlite"
	"github.com/pkg/errors"

	"github.com/forensicanalysis/thumbcache"
)

// Store is a Sink backed by a SQLite database.
type Store struct {
	conn *sqlite.Conn
}

// New opens or creates the database at url and ensures the thumbnails
// table exists.
func New(url string) (*Store, error) {
	conn, err := sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	store := &Store{conn: conn}
	if err := store.exec(`CREATE TABLE IF NOT EXISTS thumbnails (
		id TEXT PRIMARY KEY,
		json TEXT NOT NULL,
		data BLOB,
		insert_time TEXT NOT NULL
	)`); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) exec(query string) error {
	stmt, err := s.conn.Prepare(query)
	if err != nil {
		return errors.Wrap(err, "prepare")
	}
	if _, err := stmt.Step(); err != nil {
		return errors.Wrap(err, "step")
	}
	return stmt.Finalize()
}

// Write inserts one thumbnail.
func (s *Store) Write(t *thumbcache.Thumbnail) error {
	meta, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "marshal thumbnail")
	}
	stmt, err := s.conn.Prepare("INSERT INTO thumbnails (id, json, data, insert_time) VALUES ($id, $json, $data, $time)")
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	stmt.SetText("$id", t.ID)
	stmt.SetText("$json", string(meta))
	stmt.SetBytes("$data", t.Data)
	stmt.SetText("$time", time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	if _, err := stmt.Step(); err != nil {
		return errors.Wrap(err, "insert thumbnail")
	}
	return stmt.Finalize()
}

// All returns the metadata JSON of every stored thumbnail in insertion
// order.
func (s *Store) All() ([]string, error) {
	stmt, err := s.conn.Prepare("SELECT json FROM thumbnails ORDER BY rowid")
	if err != nil {
		return nil, errors.Wrap(err, "prepare select")
	}
	var elements []string
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, errors.Wrap(err, "step select")
		}
		if !hasRow {
			break
		}
		elements = append(elements, stmt.GetText("json"))
	}
	return elements, stmt.Finalize()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
