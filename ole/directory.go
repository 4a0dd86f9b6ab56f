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
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
)

// EntryType is the object type of a directory entry. Unrecognized values
// are preserved, not silently mapped.
type EntryType uint8

const (
	TypeEmpty     EntryType = 0
	TypeStorage   EntryType = 1
	TypeStream    EntryType = 2
	TypeLockBytes EntryType = 3
	TypeProperty  EntryType = 4
	TypeRoot      EntryType = 5
)

func (t EntryType) String() string {
	switch t {
	case TypeEmpty:
		return "Empty"
	case TypeStorage:
		return "Storage"
	case TypeStream:
		return "Stream"
	case TypeLockBytes:
		return "LockBytes"
	case TypeProperty:
		return "Property"
	case TypeRoot:
		return "Root"
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// Known reports whether the type is one of the five documented entry types.
func (t EntryType) Known() bool { return t <= TypeRoot }

// DirEntry is one 128 byte directory entry. Sibling and child references
// are indices into the entries array, forming a red-black tree per storage.
type DirEntry struct {
	Name        string
	Type        EntryType
	Color       uint8 // 0 red, 1 black
	Left        uint32
	Right       uint32
	Child       uint32
	CLSID       [16]byte
	StateBits   uint32
	Created     uint64 // FILETIME
	Modified    uint64 // FILETIME
	StartSector uint32
	Size        uint64

	rawName []uint16 // UTF-16 code units without the terminating NUL
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// DecodeUTF16 converts UTF-16LE bytes to a string, dropping a trailing NUL.
func DecodeUTF16(b []byte) (string, error) {
	decoded, err := utf16le.Bytes(b)
	if err != nil {
		return "", errors.Wrap(err, "ole: utf-16 decode")
	}
	for len(decoded) > 0 && decoded[len(decoded)-1] == 0 {
		decoded = decoded[:len(decoded)-1]
	}
	return string(decoded), nil
}

// readDirectory walks the directory chain and decodes sectorSize/128
// entries per sector. Entry 0 must be the root.
func (r *Reader) readDirectory() error {
	sectors, err := r.chain(r.header.dirFirst, false)
	if err != nil {
		return err
	}
	perSector := int(r.header.sectorSize / dirEntrySize)
	sector := make([]byte, r.header.sectorSize)
	for _, sn := range sectors {
		if err := r.readAt(sector, r.sectorOffset(sn)); err != nil {
			return err
		}
		for i := 0; i < perSector; i++ {
			entry, err := parseDirEntry(sector[i*dirEntrySize : (i+1)*dirEntrySize])
			if err != nil {
				return err
			}
			r.entries = append(r.entries, entry)
		}
	}
	if len(r.entries) == 0 || r.entries[0].Type != TypeRoot {
		return errors.Wrap(ErrBadDirectory, "first directory entry is not the root")
	}
	return nil
}

func parseDirEntry(b []byte) (DirEntry, error) {
	entry := DirEntry{
		Type:        EntryType(b[66]),
		Color:       b[67],
		Left:        le32(b[68:]),
		Right:       le32(b[72:]),
		Child:       le32(b[76:]),
		StateBits:   le32(b[96:]),
		Created:     le64(b[100:]),
		Modified:    le64(b[108:]),
		StartSector: le32(b[116:]),
		Size:        le64(b[120:]),
	}
	copy(entry.CLSID[:], b[80:96])

	nameLen := le16(b[64:])
	if entry.Type == TypeEmpty {
		return entry, nil
	}
	if nameLen < 2 || nameLen > 64 || nameLen%2 != 0 {
		return entry, errors.Wrapf(ErrBadDirectory, "name length %d", nameLen)
	}
	units := int(nameLen/2) - 1 // drop terminating NUL
	entry.rawName = make([]uint16, units)
	for i := 0; i < units; i++ {
		entry.rawName[i] = le16(b[i*2:])
	}
	name, err := DecodeUTF16(b[:units*2])
	if err != nil {
		return entry, err
	}
	entry.Name = name
	return entry, nil
}
