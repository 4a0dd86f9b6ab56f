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
	"bytes"

	"github.com/forensicanalysis/thumbcache/ole"
)

// ContainerKind is the thumbnail container family of an input file.
type ContainerKind int

const (
	ContainerUnknown ContainerKind = iota
	ContainerOLE
	ContainerOLEInverted
	ContainerCMMM
	ContainerIMMM
)

func (k ContainerKind) String() string {
	switch k {
	case ContainerOLE:
		return "OLE (Thumbs.db)"
	case ContainerOLEInverted:
		return "OLE (Thumbs.db, inverted)"
	case ContainerCMMM:
		return "CMMM (thumbcache_*.db)"
	case ContainerIMMM:
		return "IMMM (thumbcache_idx.db)"
	}
	return "Unknown"
}

// Sniff identifies a container family from the leading bytes of a file.
func Sniff(prefix []byte) ContainerKind {
	switch {
	case bytes.HasPrefix(prefix, ole.Signature):
		return ContainerOLE
	case bytes.HasPrefix(prefix, ole.SignatureInverted):
		return ContainerOLEInverted
	case bytes.HasPrefix(prefix, []byte("CMMM")):
		return ContainerCMMM
	case bytes.HasPrefix(prefix, []byte("IMMM")):
		return ContainerIMMM
	}
	return ContainerUnknown
}
