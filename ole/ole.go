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

// Package ole reads OLE Compound File Binary containers, the structured
// storage format used by Thumbs.db files. It parses the header, DIFAT, FAT,
// mini FAT and directory tree and assembles named streams from their sector
// chains.
package ole

import (
	"context"
	"encoding/binary"
	"io"
	"unicode/utf16"

	"github.com/pkg/errors"
)

// Sector chain sentinels.
const (
	SecDIFAT      uint32 = 0xFFFFFFFC // sector holds part of the DIFAT
	SecFAT        uint32 = 0xFFFFFFFD // sector holds part of the FAT
	SecEndOfChain uint32 = 0xFFFFFFFE // last sector of a chain
	SecFree       uint32 = 0xFFFFFFFF // unallocated sector
	NoStream      uint32 = 0xFFFFFFFF // empty directory sibling/child pointer
)

const (
	headerSize    = 512
	dirEntrySize  = 128
	miniSectorLen = 64
)

// Parse failures. Structural errors of this package wrap one of these;
// underlying read failures, UTF-16 decode failures and context
// cancellation are returned without them.
var (
	ErrBadSignature = errors.New("ole: not a compound file")
	ErrBadHeader    = errors.New("ole: invalid header")
	ErrCorruptChain = errors.New("ole: corrupt sector chain")
	ErrBadDirectory = errors.New("ole: invalid directory entry")
)

// Reader provides random access to the streams of a compound file. It owns
// the FAT, mini FAT and directory arrays built at construction; callers get
// copies of stream contents and read-only views of directory entries.
type Reader struct {
	r    io.ReaderAt
	size int64

	header     *header
	fat        []uint32
	miniFAT    []uint32
	ministream []uint32 // main FAT chain holding the ministream
	entries    []DirEntry

	// Inverted reports that the container carried the bit-inverted
	// signature variant and all bytes were XORed on read.
	Inverted bool
}

// New parses the container structures of a compound file. The reader keeps
// ra for the lifetime of the Reader; stream contents are read on demand.
func New(ra io.ReaderAt, size int64) (*Reader, error) {
	r := &Reader{r: ra, size: size}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	if err := r.readFAT(); err != nil {
		return nil, err
	}
	if err := r.readMiniFAT(); err != nil {
		return nil, err
	}
	if err := r.readDirectory(); err != nil {
		return nil, err
	}
	if err := r.readMinistreamChain(); err != nil {
		return nil, err
	}
	return r, nil
}

// Entries returns the directory entries in on-disk order. Entry 0 is the
// root entry.
func (r *Reader) Entries() []DirEntry { return r.entries }

// Root returns the root directory entry.
func (r *Reader) Root() *DirEntry { return &r.entries[0] }

func (r *Reader) readAt(b []byte, off int64) error {
	if off < 0 || off+int64(len(b)) > r.size {
		return errors.Wrapf(ErrCorruptChain, "read of %d bytes at offset %d beyond file size %d", len(b), off, r.size)
	}
	if _, err := r.r.ReadAt(b, off); err != nil {
		return errors.Wrap(err, "ole: read failed")
	}
	if r.Inverted {
		for i := range b {
			b[i] ^= 0xFF
		}
	}
	return nil
}

// sectorOffset converts a sector number to a file offset. Sector 0 starts
// directly after the 512 byte header for version 3 files; version 4 files
// use 4096 byte sectors aligned the same way.
func (r *Reader) sectorOffset(sn uint32) int64 {
	return int64(sn+1) * int64(r.header.sectorSize)
}

// next looks up the FAT entry for a sector to find its successor.
func (r *Reader) next(sn uint32, mini bool) (uint32, error) {
	table := r.fat
	if mini {
		table = r.miniFAT
	}
	if int(sn) >= len(table) {
		return 0, errors.Wrapf(ErrCorruptChain, "sector %d outside allocation table of %d entries", sn, len(table))
	}
	return table[sn], nil
}

// chain follows a sector chain from start until end of chain. A sector
// revisited or out of table range fails with ErrCorruptChain.
func (r *Reader) chain(start uint32, mini bool) ([]uint32, error) {
	var sectors []uint32
	seen := make(map[uint32]bool)
	for sn := start; sn != SecEndOfChain; {
		if sn == SecFree || sn == SecFAT || sn == SecDIFAT {
			return nil, errors.Wrapf(ErrCorruptChain, "sentinel sector %#x inside chain", sn)
		}
		if seen[sn] {
			return nil, errors.Wrapf(ErrCorruptChain, "cycle at sector %d", sn)
		}
		seen[sn] = true
		sectors = append(sectors, sn)
		var err error
		sn, err = r.next(sn, mini)
		if err != nil {
			return nil, err
		}
	}
	return sectors, nil
}

// StreamByName resolves a stream by descending the red-black sibling tree
// from the root entry's child, then assembles its contents.
func (r *Reader) StreamByName(name string) ([]byte, error) {
	entry, err := r.FindEntry(name)
	if err != nil {
		return nil, err
	}
	return r.Stream(entry)
}

// FindEntry descends the directory tree from the root entry's child,
// comparing names first by UTF-16 length, then by code unit.
func (r *Reader) FindEntry(name string) (*DirEntry, error) {
	target := utf16.Encode([]rune(name))
	id := r.entries[0].Child
	for id != NoStream {
		if int(id) >= len(r.entries) {
			return nil, errors.Wrapf(ErrBadDirectory, "sibling pointer %d outside directory", id)
		}
		entry := &r.entries[id]
		switch compareNames(target, entry.rawName) {
		case 0:
			return entry, nil
		case -1:
			id = entry.Left
		default:
			id = entry.Right
		}
	}
	return nil, errors.Wrapf(ErrBadDirectory, "no stream named %q", name)
}

// compareNames orders directory entry names by UTF-16 code unit count
// first, then lexicographically by code unit.
func compareNames(a, b []uint16) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Stream assembles the contents of a stream entry. Streams at least as
// large as the mini stream cutoff live in the main FAT; smaller ones are
// carved out of the ministream through the mini FAT.
func (r *Reader) Stream(entry *DirEntry) ([]byte, error) {
	return r.StreamContext(context.Background(), entry)
}

// StreamContext is Stream with cooperative cancellation, checked at sector
// boundaries.
func (r *Reader) StreamContext(ctx context.Context, entry *DirEntry) ([]byte, error) {
	if entry.Type != TypeStream && entry.Type != TypeRoot {
		return nil, errors.Wrapf(ErrBadDirectory, "entry %q is not a stream", entry.Name)
	}
	if entry.Size == 0 {
		return nil, nil
	}
	mini := entry.Type == TypeStream && entry.Size < uint64(r.header.miniCutoff)
	sectors, err := r.chain(entry.StartSector, mini)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, entry.Size)
	remaining := entry.Size
	buf := make([]byte, r.header.sectorSize)
	if mini {
		buf = buf[:miniSectorLen]
	}
	for _, sn := range sectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if remaining == 0 {
			break
		}
		var off int64
		if mini {
			off, err = r.miniSectorOffset(sn)
			if err != nil {
				return nil, err
			}
		} else {
			off = r.sectorOffset(sn)
		}
		n := uint64(len(buf))
		if remaining < n {
			n = remaining
		}
		if err := r.readAt(buf[:n], off); err != nil {
			return nil, err
		}
		out = append(out, buf[:n]...)
		remaining -= n
	}
	if remaining > 0 {
		return nil, errors.Wrapf(ErrCorruptChain, "stream %q truncated, %d bytes missing", entry.Name, remaining)
	}
	return out, nil
}

// miniSectorOffset locates a mini sector within the ministream, which is
// itself a chain of regular sectors starting at the root entry.
func (r *Reader) miniSectorOffset(msn uint32) (int64, error) {
	perSector := r.header.sectorSize / miniSectorLen
	idx := int(msn / perSector)
	if idx >= len(r.ministream) {
		return 0, errors.Wrapf(ErrCorruptChain, "mini sector %d outside ministream of %d sectors", msn, len(r.ministream))
	}
	within := int64(msn%perSector) * miniSectorLen
	return r.sectorOffset(r.ministream[idx]) + within, nil
}

// readMinistreamChain records the main FAT chain that stores the
// ministream. The root entry's start sector heads the chain, its size is
// the ministream length.
func (r *Reader) readMinistreamChain() error {
	root := r.Root()
	if root.StartSector == SecEndOfChain || root.StartSector == SecFree || root.Size == 0 {
		return nil
	}
	sectors, err := r.chain(root.StartSector, false)
	if err != nil {
		return err
	}
	r.ministream = sectors
	return nil
}

func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func le16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func le64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
