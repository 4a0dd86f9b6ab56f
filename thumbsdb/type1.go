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

package thumbsdb

import (
	"bytes"

	"github.com/pkg/errors"
)

// Type 1 streams carry JPEG compressed sample planes without any framing:
// no SOI, APP0, quantization or Huffman tables, no frame header. The
// planes are inverted CMY plus alpha, stored in Y-M-C order. Reconstruction
// wraps the scan data in synthesized standard markers so that any baseline
// decoder consumes it as a four channel CMYK JPEG. The alpha plane stands
// in for K and decodes as 0xFF at every sample, "no key".

// ErrEmptyScan marks a Type 1 stream without scan data.
var ErrEmptyScan = errors.New("thumbsdb: empty type 1 scan data")

// Standard luminance and chrominance quantization tables, JPEG Annex K.
var quantLuminance = [64]byte{
	16, 11, 10, 16, 24, 40, 51, 61,
	12, 12, 14, 19, 26, 58, 60, 55,
	14, 13, 16, 24, 40, 57, 69, 56,
	14, 17, 22, 29, 51, 87, 80, 62,
	18, 22, 37, 56, 68, 109, 103, 77,
	24, 35, 55, 64, 81, 104, 113, 92,
	49, 64, 78, 87, 103, 121, 120, 101,
	72, 92, 95, 98, 112, 100, 103, 99,
}

var quantChrominance = [64]byte{
	17, 18, 24, 47, 99, 99, 99, 99,
	18, 21, 26, 66, 99, 99, 99, 99,
	24, 26, 56, 99, 99, 99, 99, 99,
	47, 66, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
}

// Standard Huffman tables, JPEG Annex K. Counts of codes per bit length,
// then the symbol values.
var (
	huffDCLuminanceCounts = [16]byte{0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0}
	huffDCValues          = []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

	huffDCChrominanceCounts = [16]byte{0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0}

	huffACLuminanceCounts = [16]byte{0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 0x7D}
	huffACLuminanceValues = []byte{
		0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12, 0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61, 0x07,
		0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xA1, 0x08, 0x23, 0x42, 0xB1, 0xC1, 0x15, 0x52, 0xD1, 0xF0,
		0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0A, 0x16, 0x17, 0x18, 0x19, 0x1A, 0x25, 0x26, 0x27, 0x28,
		0x29, 0x2A, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3A, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49,
		0x4A, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5A, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69,
		0x6A, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7A, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
		0x8A, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9A, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7,
		0xA8, 0xA9, 0xAA, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7, 0xB8, 0xB9, 0xBA, 0xC2, 0xC3, 0xC4, 0xC5,
		0xC6, 0xC7, 0xC8, 0xC9, 0xCA, 0xD2, 0xD3, 0xD4, 0xD5, 0xD6, 0xD7, 0xD8, 0xD9, 0xDA, 0xE1, 0xE2,
		0xE3, 0xE4, 0xE5, 0xE6, 0xE7, 0xE8, 0xE9, 0xEA, 0xF1, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6, 0xF7, 0xF8,
		0xF9, 0xFA,
	}

	huffACChrominanceCounts = [16]byte{0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 0x77}
	huffACChrominanceValues = []byte{
		0x00, 0x01, 0x02, 0x03, 0x11, 0x04, 0x05, 0x21, 0x31, 0x06, 0x12, 0x41, 0x51, 0x07, 0x61, 0x71,
		0x13, 0x22, 0x32, 0x81, 0x08, 0x14, 0x42, 0x91, 0xA1, 0xB1, 0xC1, 0x09, 0x23, 0x33, 0x52, 0xF0,
		0x15, 0x62, 0x72, 0xD1, 0x0A, 0x16, 0x24, 0x34, 0xE1, 0x25, 0xF1, 0x17, 0x18, 0x19, 0x1A, 0x26,
		0x27, 0x28, 0x29, 0x2A, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3A, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48,
		0x49, 0x4A, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5A, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68,
		0x69, 0x6A, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7A, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87,
		0x88, 0x89, 0x8A, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9A, 0xA2, 0xA3, 0xA4, 0xA5,
		0xA6, 0xA7, 0xA8, 0xA9, 0xAA, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7, 0xB8, 0xB9, 0xBA, 0xC2, 0xC3,
		0xC4, 0xC5, 0xC6, 0xC7, 0xC8, 0xC9, 0xCA, 0xD2, 0xD3, 0xD4, 0xD5, 0xD6, 0xD7, 0xD8, 0xD9, 0xDA,
		0xE2, 0xE3, 0xE4, 0xE5, 0xE6, 0xE7, 0xE8, 0xE9, 0xEA, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6, 0xF7, 0xF8,
		0xF9, 0xFA,
	}
)

// ReconstructType1 wraps raw Type 1 scan data into a standard CMYK JPEG:
// SOI, JFIF and Adobe markers, the Annex K quantization and Huffman
// tables, a four component baseline frame, the scan, and EOI. The stored
// Y-M-C plane order is remapped through the scan component declaration so
// the output reads as (C, M, Y, K).
func ReconstructType1(scan []byte, width, height uint32) ([]byte, error) {
	if len(scan) == 0 {
		return nil, ErrEmptyScan
	}

	var buf bytes.Buffer
	buf.Grow(len(scan) + 1024)

	buf.Write([]byte{0xFF, 0xD8}) // SOI

	// APP0, JFIF 1.01, 96x96 dpi
	buf.Write([]byte{
		0xFF, 0xE0, 0x00, 0x10,
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01,
		0x01,       // density in dots per inch
		0x00, 0x60, // x density 96
		0x00, 0x60, // y density 96
		0x00, 0x00, // no thumbnail
	})

	// APP14 Adobe, color transform 0: four channel data is plain CMYK,
	// not YCCK.
	buf.Write([]byte{
		0xFF, 0xEE, 0x00, 0x0E,
		'A', 'd', 'o', 'b', 'e',
		0x00, 0x64, // version 100
		0x00, 0x00, // flags0
		0x00, 0x00, // flags1
		0x00, // transform
	})

	writeDQT(&buf, 0, quantLuminance)
	writeDQT(&buf, 1, quantChrominance)

	writeDHT(&buf, 0x00, huffDCLuminanceCounts, huffDCValues)
	writeDHT(&buf, 0x10, huffACLuminanceCounts, huffACLuminanceValues)
	writeDHT(&buf, 0x01, huffDCChrominanceCounts, huffDCValues)
	writeDHT(&buf, 0x11, huffACChrominanceCounts, huffACChrominanceValues)

	// SOF0: four components, 1x1 sampling, quantization tables {0,1,1,0}.
	buf.Write([]byte{
		0xFF, 0xC0, 0x00, 0x14,
		0x08, // precision
		byte(height >> 8), byte(height),
		byte(width >> 8), byte(width),
		0x04,
		0x01, 0x11, 0x00, // C
		0x02, 0x11, 0x01, // M
		0x03, 0x11, 0x01, // Y
		0x04, 0x11, 0x00, // K
	})

	// SOS: the stored plane order is Y-M-C followed by alpha, so the scan
	// declares components 3, 2, 1, 4.
	buf.Write([]byte{
		0xFF, 0xDA, 0x00, 0x0E,
		0x04,
		0x03, 0x11,
		0x02, 0x11,
		0x01, 0x00,
		0x04, 0x00,
		0x00, 0x3F, 0x00, // spectral selection, approximation
	})

	buf.Write(scan)

	buf.Write([]byte{0xFF, 0xD9}) // EOI
	return buf.Bytes(), nil
}

func writeDQT(buf *bytes.Buffer, id byte, table [64]byte) {
	buf.Write([]byte{0xFF, 0xDB, 0x00, 0x43, id})
	buf.Write(table[:])
}

func writeDHT(buf *bytes.Buffer, classAndID byte, counts [16]byte, values []byte) {
	length := 2 + 1 + 16 + len(values)
	buf.Write([]byte{0xFF, 0xC4, byte(length >> 8), byte(length), classAndID})
	buf.Write(counts[:])
	buf.Write(values)
}
