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

package cmd

import (
	"context"
	"crypto/md5" // #nosec
	"encoding/hex"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"

	"github.com/forensicanalysis/fsdoublestar"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/thumbcache"
)

// Input files larger than this skip MD5 computation.
const md5SizeLimit = 512 * 1024 * 1024

// Well known locations under a mounted Windows file system.
var (
	esedbCandidates = []string{
		"ProgramData/Microsoft/Search/Data/Applications/Windows/Windows.edb",
		"All Users/Application Data/Microsoft/Search/Data/Applications/Windows/Windows.edb",
	}
	thumbcacheGlob = "Users/*/AppData/Local/Microsoft/Windows/Explorer/thumbcache_*.db"
)

// processInput runs the pipeline over one file and logs its summary.
// Structural errors are returned so the caller decides whether to stop.
func processInput(ctx context.Context, p *thumbcache.Pipeline, ds *dirSink, fs afero.Fs, path string, verbosity int, computeMD5 bool) error {
	if ds != nil {
		ds.beginInput(path, sniffFile(fs, path).String())
	}
	if computeMD5 && verbosity >= 0 {
		if sum, ok := md5Sum(path); ok {
			log.Printf("%s MD5: %s", path, sum)
			if ds != nil {
				ds.setMD5(sum)
			}
		} else if verbosity > 0 {
			log.Printf("Info: %s exceeds MD5 size limit, skipped", path)
		}
	}
	if err := p.ExtractFile(ctx, path); err != nil {
		return err
	}
	if verbosity >= 0 {
		log.Printf("%s: %d streams, %d extracted, %d dormant, %d skipped",
			path, p.Stats.Streams, p.Stats.Extracted, p.Stats.Dormant, p.Stats.Skipped)
	}
	return nil
}

// processDirectory extracts every recognizable cache file below dir. Per
// input failures are logged and counted; only sink failures and
// cancellation abort the walk.
func processDirectory(ctx context.Context, p *thumbcache.Pipeline, ds *dirSink, fs afero.Fs, dir string, recursive bool, verbosity int, computeMD5 bool) error {
	var inputs []string
	if recursive {
		err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			if isCacheFile(fs, path) {
				inputs = append(inputs, path)
			}
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "walk input directory")
		}
	} else {
		infos, err := afero.ReadDir(fs, dir)
		if err != nil {
			return errors.Wrap(err, "read input directory")
		}
		for _, info := range infos {
			if info.IsDir() {
				continue
			}
			full := filepath.Join(dir, info.Name())
			if isCacheFile(fs, full) {
				inputs = append(inputs, full)
			}
		}
	}
	return processAll(ctx, p, ds, fs, inputs, verbosity, computeMD5)
}

// processAutomatic treats input as the root of a mounted Windows file
// system and collects the per-user Explorer caches.
func processAutomatic(ctx context.Context, p *thumbcache.Pipeline, ds *dirSink, fs afero.Fs, base string, verbosity int, computeMD5 bool) error {
	matches, err := fsdoublestar.Glob(afero.NewIOFS(fs), path.Join(filepath.ToSlash(base), thumbcacheGlob))
	if err != nil {
		return errors.Wrap(err, "thumbcache discovery")
	}
	if len(matches) == 0 && verbosity >= 0 {
		log.Printf("Warning: no thumbcache files below %s", base)
	}
	return processAll(ctx, p, ds, fs, matches, verbosity, computeMD5)
}

func processAll(ctx context.Context, p *thumbcache.Pipeline, ds *dirSink, fs afero.Fs, inputs []string, verbosity int, computeMD5 bool) error {
	failed := 0
	for _, input := range inputs {
		err := processInput(ctx, p, ds, fs, input, verbosity, computeMD5)
		if err == nil {
			continue
		}
		cause := errors.Cause(err)
		if cause == thumbcache.ErrSinkWrite || cause == thumbcache.ErrCancelled {
			return err
		}
		failed++
		if verbosity >= 0 {
			log.Printf("Error: %s: %v", input, err)
		}
	}
	if failed > 0 && verbosity >= 0 {
		log.Printf("Warning: %d of %d inputs failed", failed, len(inputs))
	}
	return nil
}

// discoverESEDB probes the well known Windows.edb locations below base.
func discoverESEDB(fs afero.Fs, base string) string {
	for _, candidate := range esedbCandidates {
		full := filepath.Join(base, filepath.FromSlash(candidate))
		if ok, err := afero.Exists(fs, full); err == nil && ok {
			return full
		}
	}
	return ""
}

// sniffFile identifies the container family from the leading bytes.
func sniffFile(fs afero.Fs, path string) thumbcache.ContainerKind {
	f, err := fs.Open(path)
	if err != nil {
		return thumbcache.ContainerUnknown
	}
	defer f.Close()
	prefix := make([]byte, 8)
	if _, err := io.ReadFull(f, prefix); err != nil {
		return thumbcache.ContainerUnknown
	}
	return thumbcache.Sniff(prefix)
}

// isCacheFile reports whether the file carries a known container signature.
func isCacheFile(fs afero.Fs, path string) bool {
	return sniffFile(fs, path) != thumbcache.ContainerUnknown
}

// md5Sum hashes a file, refusing inputs above the size limit.
func md5Sum(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.Size() > md5SizeLimit {
		return "", false
	}
	h := md5.New() // #nosec
	if _, err := io.Copy(h, f); err != nil {
		return "", false
	}
	return hex.EncodeToString(h.Sum(nil)), true
}
