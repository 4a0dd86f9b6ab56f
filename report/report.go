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

// Package report renders the extraction results of one input into an HTML
// page and a JSON manifest placed next to the extracted images.
package report

import (
	"encoding/json"
	"html/template"
	"path"
	"time"

	"github.com/fatih/structs"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stoewer/go-strcase"

	"github.com/forensicanalysis/thumbcache"
)

// HTMLName and ManifestName are the fixed artifact names inside the
// output directory.
const (
	HTMLName     = "index.html"
	ManifestName = "report.json"
)

// Entry is one reported thumbnail: its extracted file name plus flattened
// metadata.
type Entry struct {
	FileName string                 `json:"file_name"`
	Fields   map[string]interface{} `json:"fields"`
}

// Report accumulates extraction results for one input.
type Report struct {
	Source    string    `json:"source"`
	MD5       string    `json:"md5,omitempty"`
	Container string    `json:"container"`
	Started   time.Time `json:"started"`
	Entries   []Entry   `json:"thumbnails"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// New starts a report for one input file.
func New(source, container string) *Report {
	return &Report{Source: source, Container: container, Started: time.Now().UTC()}
}

// Add records an extracted thumbnail and the image file it was written
// to. Metadata fields are flattened to snake_case keys; empty values are
// dropped.
func (r *Report) Add(t *thumbcache.Thumbnail, fileName string) {
	fields := map[string]interface{}{}
	for _, field := range structs.New(t).Fields() {
		if field.Name() == "Data" || field.IsZero() {
			continue
		}
		fields[strcase.SnakeCase(field.Name())] = field.Value()
	}
	r.Entries = append(r.Entries, Entry{FileName: fileName, Fields: fields})
}

// Warn records a non-fatal processing note for the report.
func (r *Report) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// WriteJSON renders the manifest into dir.
func (r *Report) WriteJSON(fs afero.Fs, dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal report")
	}
	if err := afero.WriteFile(fs, path.Join(dir, ManifestName), data, 0644); err != nil {
		return errors.Wrap(err, "write report")
	}
	return nil
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Thumbnail report for {{.Source}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td, th { border: 1px solid #999; padding: 4px 8px; text-align: left; vertical-align: top; }
img { max-width: 128px; max-height: 128px; }
</style>
</head>
<body>
<h1>{{.Source}}</h1>
<p>Container: {{.Container}}{{if .MD5}}, MD5: {{.MD5}}{{end}}</p>
<table>
<tr><th>Image</th><th>File</th><th>Metadata</th></tr>
{{range .Entries}}<tr>
<td>{{if .FileName}}<img src="{{.FileName}}" alt="{{.FileName}}">{{end}}</td>
<td>{{.FileName}}</td>
<td><dl>{{range $k, $v := .Fields}}<dt>{{$k}}</dt><dd>{{$v}}</dd>{{end}}</dl></td>
</tr>{{end}}
</table>
{{if .Warnings}}<h2>Warnings</h2><ul>{{range .Warnings}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body>
</html>
`))

// WriteHTML renders the HTML page into dir.
func (r *Report) WriteHTML(fs afero.Fs, dir string) error {
	f, err := fs.Create(path.Join(dir, HTMLName))
	if err != nil {
		return errors.Wrap(err, "create report")
	}
	defer f.Close()
	if err := htmlTemplate.Execute(f, r); err != nil {
		return errors.Wrap(err, "render report")
	}
	return nil
}
