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

	"github.com/pkg/errors"
)

// Signature at offset 0 of every compound file, plus the bit-inverted
// variant written by some early Thumbs.db generations.
var (
	Signature         = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	SignatureInverted = []byte{0x0E, 0x11, 0xFC, 0x0D, 0xD0, 0xCF, 0x11, 0xE0}
)

type header struct {
	minorVersion uint16
	majorVersion uint16
	sectorSize   uint32 // 1 << sector shift, 512 or 4096
	miniCutoff   uint32 // streams below this size live in the ministream

	numDirSectors  uint32
	numFATSectors  uint32
	dirFirst       uint32
	miniFATFirst   uint32
	numMiniFATSecs uint32
	difatFirst     uint32
	numDIFATSecs   uint32

	difat []uint32 // ordered FAT sector numbers
}

func (r *Reader) readHeader() error {
	raw := make([]byte, headerSize)
	if r.size < headerSize {
		return errors.Wrapf(ErrBadSignature, "file of %d bytes too small for header", r.size)
	}
	if _, err := r.r.ReadAt(raw, 0); err != nil {
		return errors.Wrap(err, "ole: read failed")
	}

	switch {
	case bytes.Equal(raw[:8], Signature):
	case bytes.Equal(raw[:8], SignatureInverted):
		r.Inverted = true
		for i := 8; i < len(raw); i++ {
			raw[i] ^= 0xFF
		}
	default:
		return errors.Wrapf(ErrBadSignature, "signature % x", raw[:8])
	}

	h := &header{
		minorVersion: le16(raw[24:]),
		majorVersion: le16(raw[26:]),
	}
	if h.majorVersion != 3 && h.majorVersion != 4 {
		return errors.Wrapf(ErrBadHeader, "major version %d", h.majorVersion)
	}
	sectorShift := le16(raw[30:])
	if sectorShift != 9 && sectorShift != 12 {
		return errors.Wrapf(ErrBadHeader, "sector shift %d", sectorShift)
	}
	h.sectorSize = 1 << sectorShift
	if miniShift := le16(raw[32:]); miniShift != 6 {
		return errors.Wrapf(ErrBadHeader, "mini sector shift %d", miniShift)
	}

	h.numDirSectors = le32(raw[40:])
	h.numFATSectors = le32(raw[44:])
	h.dirFirst = le32(raw[48:])
	h.miniCutoff = le32(raw[56:])
	h.miniFATFirst = le32(raw[60:])
	h.numMiniFATSecs = le32(raw[64:])
	h.difatFirst = le32(raw[68:])
	h.numDIFATSecs = le32(raw[72:])
	r.header = h

	// The first 109 DIFAT entries are inline in the header; overflow is
	// chained through DIFAT sectors linked by their last dword.
	for off := 76; off < headerSize; off += 4 {
		sn := le32(raw[off:])
		if sn == SecFree {
			break
		}
		h.difat = append(h.difat, sn)
	}
	entriesPerSector := int(h.sectorSize / 4)
	sn := h.difatFirst
	seen := make(map[uint32]bool)
	for i := uint32(0); sn != SecEndOfChain && sn != SecFree; i++ {
		if i >= h.numDIFATSecs || seen[sn] {
			return errors.Wrapf(ErrCorruptChain, "DIFAT chain exceeds declared %d sectors", h.numDIFATSecs)
		}
		seen[sn] = true
		sector := make([]byte, h.sectorSize)
		if err := r.readAt(sector, r.sectorOffset(sn)); err != nil {
			return err
		}
		for j := 0; j < entriesPerSector-1; j++ {
			fatSec := le32(sector[j*4:])
			if fatSec == SecFree {
				continue
			}
			h.difat = append(h.difat, fatSec)
		}
		sn = le32(sector[(entriesPerSector-1)*4:])
	}
	return nil
}

// readFAT loads every FAT sector named by the DIFAT into one contiguous
// allocation table.
func (r *Reader) readFAT() error {
	h := r.header
	entriesPerSector := int(h.sectorSize / 4)
	r.fat = make([]uint32, 0, len(h.difat)*entriesPerSector)
	sector := make([]byte, h.sectorSize)
	for _, sn := range h.difat {
		if err := r.readAt(sector, r.sectorOffset(sn)); err != nil {
			return err
		}
		for j := 0; j < entriesPerSector; j++ {
			r.fat = append(r.fat, le32(sector[j*4:]))
		}
	}
	return nil
}

// readMiniFAT walks the mini FAT chain through the main FAT, each sector
// contributing sectorSize/4 chain entries.
func (r *Reader) readMiniFAT() error {
	h := r.header
	if h.miniFATFirst == SecEndOfChain || h.miniFATFirst == SecFree {
		return nil
	}
	sectors, err := r.chain(h.miniFATFirst, false)
	if err != nil {
		return err
	}
	entriesPerSector := int(h.sectorSize / 4)
	r.miniFAT = make([]uint32, 0, len(sectors)*entriesPerSector)
	sector := make([]byte, h.sectorSize)
	for _, sn := range sectors {
		if err := r.readAt(sector, r.sectorOffset(sn)); err != nil {
			return err
		}
		for j := 0; j < entriesPerSector; j++ {
			r.miniFAT = append(r.miniFAT, le32(sector[j*4:]))
		}
	}
	return nil
}
