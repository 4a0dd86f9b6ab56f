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

// Package cmd implements the thumbcache command line tool. It drives the
// extraction pipeline over files, directories, or a mounted Windows file
// system and maps every failure class to a stable exit code.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/thumbcache"
	"github.com/forensicanalysis/thumbcache/esedb"
	"github.com/forensicanalysis/thumbcache/sqlitesink"
)

// errArgument marks command line usage errors, exit code 2.
var errArgument = errors.New("argument error")

type options struct {
	edbPath  string
	htmlRep  bool
	explore  bool
	mode     string
	md5      bool
	noMD5    bool
	outDir   string
	quiet    bool
	symlinks bool
	utf8     bool
	verbose  int
	storeURL string
}

// Command builds the thumbcache root command.
func Command() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "thumbcache [flags] input",
		Short:         "Extract thumbnail images and metadata from Windows thumbnail caches",
		Long: "Extract thumbnail images and metadata from Thumbs.db, thumbcache_*.db\n" +
			"and thumbcache_idx.db files, optionally joining the Windows Search\n" +
			"database (Windows.edb) for original file names and timestamps.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.explore {
				if opts.edbPath == "" {
					return errors.Wrap(errArgument, "-i requires -e")
				}
				return nil
			}
			if len(args) != 1 {
				return errors.Wrap(errArgument, "requires exactly one input")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args)
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.Wrap(errArgument, err.Error())
	})

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.edbPath, "esedb", "e", "", "examine the given ESE database (Windows.edb)")
	flags.BoolVarP(&opts.htmlRep, "htmlrep", "H", false, "write an HTML report into the output directory")
	flags.BoolVarP(&opts.explore, "info", "i", false, "explore the ESE database instead of extracting")
	flags.StringVarP(&opts.mode, "mode", "m", "f", "operating mode: f (file), d (directory), r (recursive), a (automatic)")
	flags.BoolVar(&opts.md5, "md5", false, "force MD5 computation of input files")
	flags.BoolVar(&opts.noMD5, "nomd5", false, "skip MD5 computation of input files")
	flags.StringVarP(&opts.outDir, "outdir", "o", "", "write extracted thumbnails into this directory")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output")
	flags.BoolVarP(&opts.symlinks, "symlinks", "s", false, "create symlinks from original names to extracted images")
	flags.BoolVarP(&opts.utf8, "utf8", "U", false, "keep UTF-8 characters in derived file names")
	flags.IntVarP(&opts.verbose, "verbose", "v", 0, "verbosity level (-1..3)")
	flags.StringVar(&opts.storeURL, "store", "", "also record thumbnails into this SQLite evidence store")
	return rootCmd
}

func run(opts *options, args []string) error {
	verbosity := opts.verbose
	if opts.quiet {
		verbosity = -1
	}
	log.SetFlags(0)

	if opts.explore {
		return esedb.Explore(opts.edbPath, os.Stdout)
	}
	input := args[0]

	if opts.symlinks && opts.outDir == "" {
		return errors.Wrap(errArgument, "-s requires -o")
	}
	if opts.htmlRep && opts.outDir == "" {
		return errors.Wrap(errArgument, "-H requires -o")
	}

	fs := afero.NewOsFs()
	var view *esedb.View
	edbPath := opts.edbPath
	if opts.mode == "a" && edbPath == "" {
		edbPath = discoverESEDB(fs, input)
	}
	if edbPath != "" {
		var err error
		view, err = esedb.Open(edbPath)
		if err != nil {
			// Cross-referencing is an enrichment; extraction continues
			// without it unless the database was named explicitly.
			if opts.edbPath != "" {
				return err
			}
			if verbosity >= 0 {
				log.Printf("Warning: %v", err)
			}
			view = nil
		} else if verbosity > 0 {
			log.Printf("Info: indexed %d rows from %s table %s", view.Len(), edbPath, view.Table())
		}
	}

	var sink thumbcache.Sink
	var images *dirSink
	if opts.outDir != "" {
		if err := fs.MkdirAll(opts.outDir, 0755); err != nil {
			return errors.Wrap(thumbcache.ErrSinkWrite, err.Error())
		}
		images = newDirSink(fs, opts.outDir, opts.symlinks, opts.utf8)
		sink = images
	} else {
		sink = &listSink{verbosity: verbosity}
	}
	if opts.storeURL != "" {
		store, err := sqlitesink.New(opts.storeURL)
		if err != nil {
			return errors.Wrap(thumbcache.ErrSinkWrite, err.Error())
		}
		defer store.Close()
		sink = multiSink{sink, store}
	}

	pipeline := thumbcache.NewPipeline(sink)
	pipeline.ESEDB = view
	pipeline.Verbosity = verbosity

	ctx := context.Background()
	computeMD5 := !opts.noMD5 || opts.md5

	var err error
	switch opts.mode {
	case "f":
		err = processInput(ctx, pipeline, images, fs, input, verbosity, computeMD5)
	case "d":
		err = processDirectory(ctx, pipeline, images, fs, input, false, verbosity, computeMD5)
	case "r":
		err = processDirectory(ctx, pipeline, images, fs, input, true, verbosity, computeMD5)
	case "a":
		err = processAutomatic(ctx, pipeline, images, fs, input, verbosity, computeMD5)
	default:
		err = errors.Wrapf(thumbcache.ErrMode, "%q", opts.mode)
	}
	if err != nil {
		return err
	}

	if images != nil && opts.htmlRep {
		if err := images.writeReports(); err != nil {
			return errors.Wrap(thumbcache.ErrReport, err.Error())
		}
	}
	return nil
}

// Execute runs the command line tool and returns its exit code.
func Execute() int {
	err := Command().Execute()
	if err == nil {
		return thumbcache.ExitOK
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Cause(err) == errArgument {
		return thumbcache.ExitArgument
	}
	return thumbcache.ExitCode(err)
}
