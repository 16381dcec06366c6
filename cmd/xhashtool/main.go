/*
xhashtool is a small administrative binary for an exthash index: build
one, inspect its shape, and poke at it interactively, mirroring the
source's own command-line front end and console (cli/eliasdb.go,
console/console.go).

Usage:

	xhashtool stat <index>      print size, max level depth, node count and per-level counts
	xhashtool dump <index>      print the directory tree depth-first
	xhashtool console <index>  open an interactive REPL

Every sub-command opens its index with config.Defaults() unless --config
(or -c) points at a HuJSON options file.
*/
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/krotik/exthash/codec"
	"github.com/krotik/exthash/config"
	"github.com/krotik/exthash/dmem"
	"github.com/krotik/exthash/hash"
	"github.com/krotik/exthash/pagecache"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "stat":
		err = runStat(args)
	case "dump":
		err = runDump(args)
	case "console":
		err = runConsole(args)
	case "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  xhashtool stat [--config file] <index>")
	fmt.Fprintln(os.Stderr, "  xhashtool dump [--config file] <index>")
	fmt.Fprintln(os.Stderr, "  xhashtool console [--config file] <index>")
}

/*
openIndex opens (creating if needed) a string/string index at path,
rooting its page cache at path's directory so bucket files live
alongside the state file.
*/
func openIndex(path string, opts config.Options) (*hash.Index[string, string], error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	cache := pagecache.NewFileCache(dir, opts.CacheMaxPages)
	mem := dmem.NewHeap()

	return hash.Open[string, string](path, cache, mem, codec.StringCodec{}, codec.StringCodec{}, opts)
}

func parseConfigFlag(name string, args []string) (config.Options, []string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	cfgFile := fs.StringP("config", "c", "", "path to a HuJSON options file")
	if err := fs.Parse(args); err != nil {
		return config.Options{}, nil, err
	}

	opts := config.Defaults()
	if *cfgFile != "" {
		var err error
		opts, err = config.LoadFile(*cfgFile)
		if err != nil {
			return config.Options{}, nil, err
		}
	}
	return opts, fs.Args(), nil
}

func runStat(args []string) error {
	opts, rest, err := parseConfigFlag("stat", args)
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("stat: missing index path")
	}

	idx, err := openIndex(rest[0], opts)
	if err != nil {
		return err
	}
	defer idx.Close()

	st := idx.Stat()
	fmt.Printf("size:           %d\n", st.Size)
	fmt.Printf("maxLevelDepth:  %d\n", st.MaxLevelDepth)
	fmt.Printf("directoryNodes: %d\n", st.NodeCount)
	fmt.Println("levels:")
	for _, lv := range st.Levels {
		fmt.Printf("  level %d: buckets=%d tombstoneChain=%v\n", lv.Level, lv.BucketsCount, lv.TombstoneChain)
	}
	return nil
}

func runDump(args []string) error {
	opts, rest, err := parseConfigFlag("dump", args)
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("dump: missing index path")
	}

	idx, err := openIndex(rest[0], opts)
	if err != nil {
		return err
	}
	defer idx.Close()

	return idx.Dump(os.Stdout)
}

func runConsole(args []string) error {
	opts, rest, err := parseConfigFlag("console", args)
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("console: missing index path")
	}

	idx, err := openIndex(rest[0], opts)
	if err != nil {
		return err
	}
	defer idx.Close()

	repl := newREPL(idx, rest[0])
	return repl.run()
}
