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
	"encoding/binary"

	"github.com/pkg/errors"
)

// Image stream header generations, distinguished by the leading declared
// header length.
const (
	headerLenGenA = 0x0C // second header {type, width, height, length} follows
	headerLenGenB = 0x18 // single header, always a complete JPEG payload

	genAHeader2Len = 0x10
)

// Per-stream decode faults. Streams failing with these are skipped, the
// rest of the container is still processed.
var (
	ErrEntryLengthMismatch = errors.New("thumbsdb: payload length does not match stream size")
	ErrMissingEOI          = errors.New("thumbsdb: missing end of image marker")
	ErrUnknownHeader       = errors.New("thumbsdb: unrecognized stream header")
)

// Image is a decoded thumbnail stream. Data always holds a complete JPEG;
// for Type 1 streams it is the reconstructed CMYK JPEG.
type Image struct {
	Type   int // 1 raw YMCA planes, 2 complete JPEG
	Width  uint32
	Height uint32
	Data   []byte
	MIME   string
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// DecodeStream decodes a non-Catalog Thumbs.db stream into an image.
func DecodeStream(data []byte) (*Image, error) {
	if len(data) < 8 {
		return nil, errors.Wrapf(ErrUnknownHeader, "stream of %d bytes", len(data))
	}
	header1Len := binary.LittleEndian.Uint32(data)
	switch header1Len {
	case headerLenGenA:
		return decodeGenA(data)
	case headerLenGenB:
		return decodeGenB(data)
	}
	return nil, errors.Wrapf(ErrUnknownHeader, "header length %#x", header1Len)
}

// decodeGenA handles the Windows 98 through XP layout: a 12 byte first
// header pointing at a 16 byte second header {type, width, height,
// payload length}, then the payload.
func decodeGenA(data []byte) (*Image, error) {
	payloadOff := headerLenGenA + genAHeader2Len
	if len(data) < payloadOff {
		return nil, errors.Wrapf(ErrUnknownHeader, "stream of %d bytes too small for headers", len(data))
	}
	typ := binary.LittleEndian.Uint32(data[headerLenGenA:])
	width := binary.LittleEndian.Uint32(data[headerLenGenA+4:])
	height := binary.LittleEndian.Uint32(data[headerLenGenA+8:])
	payloadLen := binary.LittleEndian.Uint32(data[headerLenGenA+12:])

	if int(payloadLen) != len(data)-payloadOff {
		return nil, errors.Wrapf(ErrEntryLengthMismatch,
			"declared %d, stream leaves %d", payloadLen, len(data)-payloadOff)
	}
	payload := data[payloadOff:]

	switch typ {
	case 1:
		jpeg, err := ReconstructType1(payload, width, height)
		if err != nil {
			return nil, err
		}
		return &Image{Type: 1, Width: width, Height: height, Data: jpeg, MIME: "image/jpeg"}, nil
	case 2:
		if err := checkJPEG(payload); err != nil {
			return nil, err
		}
		return &Image{Type: 2, Width: width, Height: height, Data: payload, MIME: "image/jpeg"}, nil
	}
	return nil, errors.Wrapf(ErrUnknownHeader, "image type %d", typ)
}

// decodeGenB handles the Windows Vista era layout: one header {length,
// payload offset, width, height, payload length, checksum}, payload always
// a complete JPEG.
func decodeGenB(data []byte) (*Image, error) {
	const headerTotal = 28 // five 32 bit fields plus the 64 bit checksum
	if len(data) < headerTotal {
		return nil, errors.Wrapf(ErrUnknownHeader, "stream of %d bytes too small for headers", len(data))
	}
	payloadOff := int(binary.LittleEndian.Uint32(data[4:]))
	width := binary.LittleEndian.Uint32(data[8:])
	height := binary.LittleEndian.Uint32(data[12:])
	payloadLen := binary.LittleEndian.Uint32(data[16:])

	if payloadOff < headerTotal || payloadOff > len(data) {
		return nil, errors.Wrapf(ErrUnknownHeader, "payload offset %#x", payloadOff)
	}
	if int(payloadLen) != len(data)-payloadOff {
		return nil, errors.Wrapf(ErrEntryLengthMismatch,
			"declared %d, stream leaves %d", payloadLen, len(data)-payloadOff)
	}
	payload := data[payloadOff:]
	if err := checkJPEG(payload); err != nil {
		return nil, err
	}
	return &Image{Type: 2, Width: width, Height: height, Data: payload, MIME: "image/jpeg"}, nil
}

func checkJPEG(payload []byte) error {
	if len(payload) < 4 || !bytes.HasPrefix(payload, jpegSOI) {
		return errors.Wrap(ErrUnknownHeader, "payload is not a JPEG")
	}
	if !bytes.HasSuffix(payload, jpegEOI) {
		return errors.Wrap(ErrMissingEOI, "payload")
	}
	return nil
}
