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

package esedb

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-ese/parser"
)

// Explore writes the table inventory of a database and, for the property
// store table, the System_ column names observed in its first row. This backs the
// interactive database exploration mode.
func Explore(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(ErrUnreadable, err.Error())
	}
	defer f.Close()

	ctx, err := parser.NewESEContext(f)
	if err != nil {
		return errors.Wrap(ErrUnreadable, err.Error())
	}
	catalog, err := parser.ReadCatalog(ctx)
	if err != nil {
		return errors.Wrap(ErrUnreadable, err.Error())
	}

	fmt.Fprintln(w, "Tables:")
	for _, name := range catalog.Tables.Keys() {
		fmt.Fprintf(w, "  %s\n", name)
	}

	for _, candidate := range propertyStoreTables {
		if _, ok := catalog.Tables.Get(candidate); !ok {
			continue
		}
		fmt.Fprintf(w, "\nColumns of %s:\n", candidate)
		first := true
		err := catalog.DumpTable(candidate, func(row *ordereddict.Dict) error {
			if !first {
				return io.EOF
			}
			first = false
			for _, key := range row.Keys() {
				if strings.Contains(key, "System_") {
					fmt.Fprintf(w, "  %s\n", key)
				}
			}
			return nil
		})
		if err != nil && err != io.EOF {
			return errors.Wrap(ErrUnreadable, err.Error())
		}
		return nil
	}
	return errors.Wrapf(ErrSchemaMissing, "tables: %s", strings.Join(catalog.Tables.Keys(), ", "))
}
