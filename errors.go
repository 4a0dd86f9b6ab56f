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
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/thumbcache/esedb"
	"github.com/forensicanalysis/thumbcache/ole"
)

// Process exit codes, stable across releases and relied on by scripted
// callers.
const (
	ExitOK         = 0
	ExitArgument   = 2
	ExitInput      = 10
	ExitOutput     = 11
	ExitProcessing = 12
	ExitInstall    = 13
	ExitEntry      = 14
	ExitSymlink    = 15
	ExitMode       = 16
	ExitReport     = 17
	ExitESEDB      = 18
)

// Pipeline level errors. Structural container errors come from the ole,
// thumbsdb and cachefile packages and pass through unchanged.
var (
	ErrSinkWrite   = errors.New("thumbcache: sink write failed")
	ErrCancelled   = errors.New("thumbcache: cancelled")
	ErrUnknownType = errors.New("thumbcache: unrecognized container")
	ErrMode        = errors.New("thumbcache: invalid operating mode")
	ErrSymlink     = errors.New("thumbcache: symlink creation failed")
	ErrReport      = errors.New("thumbcache: report generation failed")
)

// ExitCode maps an error to the process exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	cause := errors.Cause(err)
	switch cause {
	case ErrSinkWrite:
		return ExitOutput
	case ErrCancelled, context.Canceled, context.DeadlineExceeded:
		return ExitProcessing
	case ErrMode:
		return ExitMode
	case ErrSymlink:
		return ExitSymlink
	case ErrReport:
		return ExitReport
	case esedb.ErrUnreadable, esedb.ErrSchemaMissing:
		return ExitESEDB
	case ole.ErrBadSignature, ole.ErrBadHeader, ole.ErrCorruptChain, ole.ErrBadDirectory, ErrUnknownType:
		return ExitProcessing
	}
	if os.IsNotExist(cause) || os.IsPermission(cause) {
		return ExitInput
	}
	if _, ok := cause.(*os.PathError); ok {
		return ExitInput
	}
	return ExitProcessing
}
