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

package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qri-io/jsonschema"
	"github.com/tidwall/gjson"
)

// manifestSchema constrains the JSON manifest shape so downstream
// consumers can rely on it.
var manifestSchema = []byte(`{
  "$schema": "https://json-schema.org/draft/2019-09/schema#",
  "$id": "https://forensicanalysis.github.io/thumbcache/report.schema.json",
  "type": "object",
  "required": ["source", "container", "thumbnails"],
  "properties": {
    "source": {"type": "string", "minLength": 1},
    "md5": {"type": "string", "pattern": "^[0-9a-f]{32}$"},
    "container": {"type": "string", "minLength": 1},
    "thumbnails": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["file_name", "fields"],
        "properties": {
          "file_name": {"type": "string"},
          "fields": {"type": "object"}
        }
      }
    },
    "warnings": {"type": "array", "items": {"type": "string"}}
  }
}`)

// ValidateManifest checks a rendered manifest against the report schema
// and returns human readable flaws.
func ValidateManifest(data []byte) (flaws []string, err error) {
	if !gjson.GetBytes(data, "source").Exists() {
		flaws = append(flaws, "manifest needs a source")
	}

	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(manifestSchema, schema); err != nil {
		return nil, err
	}
	errs, err := schema.ValidateBytes(context.Background(), data)
	if err != nil {
		return nil, err
	}
	for _, verr := range errs {
		flaws = append(flaws, fmt.Sprintf("failed to validate manifest: %s", verr))
	}
	return flaws, nil
}
