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

// Package oletest builds minimal version 3 compound files in memory for
// tests. It supports a single FAT sector, which bounds fixtures to roughly
// 60 KiB of payload, plenty for thumbnail test data.
package oletest

import (
	"encoding/binary"
	"sort"
	"unicode/utf16"
)

const (
	sectorSize    = 512
	miniSector    = 64
	miniCutoff    = 4096
	secFAT        = 0xFFFFFFFD
	secEndOfChain = 0xFFFFFFFE
	secFree       = 0xFFFFFFFF
	noStream      = 0xFFFFFFFF
)

// Stream is a named stream to place into the fixture container.
type Stream struct {
	Name string
	Data []byte
}

type dirEntry struct {
	name                []uint16
	typ                 uint8
	left, right, child  uint32
	startSector         uint32
	size                uint64
}

// Build assembles a compound file holding the given streams. Streams
// smaller than the mini stream cutoff are placed in the ministream.
func Build(streams ...Stream) []byte {
	numEntries := 1 + len(streams)
	dirSectors := (numEntries*128 + sectorSize - 1) / sectorSize

	var miniStreams, bigStreams []int
	for i, s := range streams {
		if len(s.Data) < miniCutoff {
			miniStreams = append(miniStreams, i)
		} else {
			bigStreams = append(bigStreams, i)
		}
	}

	// Fixed allocation order: FAT, directory chain, mini FAT, ministream
	// chain, then each big stream chain.
	next := uint32(1)
	dirFirst := next
	next += uint32(dirSectors)

	miniFATFirst := uint32(secEndOfChain)
	numMiniFAT := uint32(0)
	var ministreamData []byte
	miniStarts := map[int]uint32{}
	if len(miniStreams) > 0 {
		miniFATFirst = next
		numMiniFAT = 1
		next++
	}
	var miniFAT []uint32
	for _, i := range miniStreams {
		data := streams[i].Data
		n := (len(data) + miniSector - 1) / miniSector
		if n == 0 {
			n = 1
		}
		start := uint32(len(miniFAT))
		miniStarts[i] = start
		for j := 0; j < n; j++ {
			if j == n-1 {
				miniFAT = append(miniFAT, secEndOfChain)
			} else {
				miniFAT = append(miniFAT, start+uint32(j)+1)
			}
		}
		padded := make([]byte, n*miniSector)
		copy(padded, data)
		ministreamData = append(ministreamData, padded...)
	}
	ministreamFirst := uint32(secEndOfChain)
	ministreamSectors := (len(ministreamData) + sectorSize - 1) / sectorSize
	if ministreamSectors > 0 {
		ministreamFirst = next
		next += uint32(ministreamSectors)
	}
	bigStarts := map[int]uint32{}
	bigLens := map[int]int{}
	for _, i := range bigStreams {
		n := (len(streams[i].Data) + sectorSize - 1) / sectorSize
		bigStarts[i] = next
		bigLens[i] = n
		next += uint32(n)
	}
	totalSectors := int(next)

	fat := make([]uint32, sectorSize/4)
	for i := range fat {
		fat[i] = secFree
	}
	fat[0] = secFAT
	chain := func(start uint32, n int) {
		for j := 0; j < n; j++ {
			if j == n-1 {
				fat[start+uint32(j)] = secEndOfChain
			} else {
				fat[start+uint32(j)] = start + uint32(j) + 1
			}
		}
	}
	chain(dirFirst, dirSectors)
	if numMiniFAT > 0 {
		chain(miniFATFirst, 1)
	}
	if ministreamSectors > 0 {
		chain(ministreamFirst, ministreamSectors)
	}
	for _, i := range bigStreams {
		chain(bigStarts[i], bigLens[i])
	}

	// Directory: root plus one entry per stream, siblings arranged as a
	// balanced tree below the root's child.
	entries := make([]dirEntry, numEntries)
	entries[0] = dirEntry{
		name:        utf16.Encode([]rune("Root Entry")),
		typ:         5,
		left:        noStream,
		right:       noStream,
		child:       noStream,
		startSector: ministreamFirst,
		size:        uint64(len(ministreamData)),
	}
	for i, s := range streams {
		e := dirEntry{
			name:  utf16.Encode([]rune(s.Name)),
			typ:   2,
			left:  noStream,
			right: noStream,
			child: noStream,
			size:  uint64(len(s.Data)),
		}
		if start, ok := miniStarts[i]; ok {
			e.startSector = start
		} else {
			e.startSector = bigStarts[i]
		}
		if len(s.Data) == 0 {
			e.startSector = secEndOfChain
		}
		entries[i+1] = e
	}
	if len(streams) > 0 {
		order := make([]int, len(streams))
		for i := range order {
			order[i] = i + 1
		}
		sort.Slice(order, func(a, b int) bool {
			return nameLess(entries[order[a]].name, entries[order[b]].name)
		})
		entries[0].child = buildTree(entries, order)
	}

	out := make([]byte, sectorSize+totalSectors*sectorSize)
	writeHeader(out, dirFirst, miniFATFirst, numMiniFAT)
	for i, v := range fat {
		binary.LittleEndian.PutUint32(out[sectorSize+i*4:], v)
	}
	dirOff := sectorSize + int(dirFirst)*sectorSize
	for i, e := range entries {
		writeDirEntry(out[dirOff+i*128:], e)
	}
	// Remaining directory slots stay zero, which reads as empty entries.
	if numMiniFAT > 0 {
		off := sectorSize + int(miniFATFirst)*sectorSize
		for i, v := range miniFAT {
			binary.LittleEndian.PutUint32(out[off+i*4:], v)
		}
		for i := len(miniFAT); i < sectorSize/4; i++ {
			binary.LittleEndian.PutUint32(out[off+i*4:], secFree)
		}
	}
	if ministreamSectors > 0 {
		copy(out[sectorSize+int(ministreamFirst)*sectorSize:], ministreamData)
	}
	for _, i := range bigStreams {
		copy(out[sectorSize+int(bigStarts[i])*sectorSize:], streams[i].Data)
	}
	return out
}

// Invert rewrites a compound file into the bit-inverted signature variant.
func Invert(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, []byte{0x0E, 0x11, 0xFC, 0x0D, 0xD0, 0xCF, 0x11, 0xE0})
	for i := 8; i < len(b); i++ {
		out[i] = b[i] ^ 0xFF
	}
	return out
}

func nameLess(a, b []uint16) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func buildTree(entries []dirEntry, order []int) uint32 {
	if len(order) == 0 {
		return noStream
	}
	mid := len(order) / 2
	idx := order[mid]
	entries[idx].left = buildTree(entries, order[:mid])
	entries[idx].right = buildTree(entries, order[mid+1:])
	return uint32(idx)
}

func writeHeader(out []byte, dirFirst, miniFATFirst, numMiniFAT uint32) {
	copy(out, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	binary.LittleEndian.PutUint16(out[24:], 0x3E) // minor version
	binary.LittleEndian.PutUint16(out[26:], 3)    // major version
	out[28], out[29] = 0xFE, 0xFF                 // byte order
	binary.LittleEndian.PutUint16(out[30:], 9)    // sector shift
	binary.LittleEndian.PutUint16(out[32:], 6)    // mini sector shift
	binary.LittleEndian.PutUint32(out[44:], 1)    // FAT sectors
	binary.LittleEndian.PutUint32(out[48:], dirFirst)
	binary.LittleEndian.PutUint32(out[56:], miniCutoff)
	binary.LittleEndian.PutUint32(out[60:], miniFATFirst)
	binary.LittleEndian.PutUint32(out[64:], numMiniFAT)
	binary.LittleEndian.PutUint32(out[68:], secEndOfChain) // no DIFAT chain
	binary.LittleEndian.PutUint32(out[76:], 0)             // FAT at sector 0
	for off := 80; off < 512; off += 4 {
		binary.LittleEndian.PutUint32(out[off:], secFree)
	}
}

func writeDirEntry(out []byte, e dirEntry) {
	for i, u := range e.name {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	binary.LittleEndian.PutUint16(out[64:], uint16((len(e.name)+1)*2))
	out[66] = e.typ
	out[67] = 1 // black
	binary.LittleEndian.PutUint32(out[68:], e.left)
	binary.LittleEndian.PutUint32(out[72:], e.right)
	binary.LittleEndian.PutUint32(out[76:], e.child)
	binary.LittleEndian.PutUint32(out[116:], e.startSector)
	binary.LittleEndian.PutUint64(out[120:], e.size)
}
