package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/krotik/exthash/hash"
)

/*
repl is the interactive command loop xhashtool console runs, grounded on
cmd/sloty's liner-based REPL (github.com/calvinalkan/agent-task,
cmd/sloty/main.go): a liner.State for line editing and history, commands
dispatched on the first whitespace-separated token.
*/
type repl struct {
	idx  *hash.Index[string, string]
	name string
	line *liner.State
}

func newREPL(idx *hash.Index[string, string], name string) *repl {
	return &repl{idx: idx, name: name}
}

func (r *repl) historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".xhashtool_history")
}

func isExitLine(s string) bool {
	return s == "exit" || s == "quit" || s == "q" || s == "\x04"
}

func (r *repl) run() error {
	r.line = liner.NewLiner()
	defer r.line.Close()

	r.line.SetCtrlCAborts(true)
	r.line.SetCompleter(r.completer)

	if f, err := os.Open(r.historyFile()); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("xhashtool console - %s\n", r.name)
	fmt.Println("Type 'help' for available commands, 'quit' to exit.")

	for {
		line, err := r.line.Prompt("xhash> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nbye")
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.line.AppendHistory(line)

		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])
		args := fields[1:]

		if isExitLine(cmd) {
			fmt.Println("bye")
			break
		}

		switch cmd {
		case "help", "?":
			r.printHelp()
		case "get":
			r.cmdGet(args)
		case "put":
			r.cmdPut(args)
		case "remove", "del":
			r.cmdRemove(args)
		case "higher":
			r.cmdRange(args, r.idx.HigherEntries)
		case "ceiling":
			r.cmdRange(args, r.idx.CeilingEntries)
		case "lower":
			r.cmdRange(args, r.idx.LowerEntries)
		case "floor":
			r.cmdRange(args, r.idx.FloorEntries)
		case "stat":
			r.cmdStat()
		default:
			fmt.Printf("unknown command %q (type 'help')\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *repl) saveHistory() {
	path := r.historyFile()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		r.line.WriteHistory(f)
		f.Close()
	}
}

func (r *repl) completer(line string) []string {
	commands := []string{"get", "put", "remove", "higher", "ceiling", "lower", "floor", "stat", "help", "quit"}
	var out []string
	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}
	return out
}

func (r *repl) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  get <key>              look up a value")
	fmt.Println("  put <key> <value>      insert or update a value")
	fmt.Println("  remove <key>           remove a key")
	fmt.Println("  higher <key>           entries after key, in hash-prefix order")
	fmt.Println("  ceiling <key>          key's own entry plus everything higher")
	fmt.Println("  lower <key>            entries before key, in reverse hash-prefix order")
	fmt.Println("  floor <key>            key's own entry plus everything lower")
	fmt.Println("  stat                   print index size and shape")
	fmt.Println("  help                   show this help")
	fmt.Println("  quit / exit / q        exit")
}

func (r *repl) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: get <key>")
		return
	}
	v, ok, err := r.idx.Lookup(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !ok {
		fmt.Println("(not found)")
		return
	}
	fmt.Println(v)
}

func (r *repl) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: put <key> <value>")
		return
	}
	if err := r.idx.Insert(args[0], strings.Join(args[1:], " ")); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

func (r *repl) cmdRemove(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: remove <key>")
		return
	}
	found, err := r.idx.Remove(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if found {
		fmt.Println("ok: removed")
	} else {
		fmt.Println("ok: not present")
	}
}

func (r *repl) cmdRange(args []string, fn func(string) ([]hash.Pair[string, string], error)) {
	if len(args) < 1 {
		fmt.Println("usage: <higher|ceiling|lower|floor> <key>")
		return
	}
	pairs, err := fn(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(pairs) == 0 {
		fmt.Println("(empty)")
		return
	}
	for _, p := range pairs {
		fmt.Printf("%s = %s\n", p.Key, p.Value)
	}
}

func (r *repl) cmdStat() {
	st := r.idx.Stat()
	fmt.Printf("size:           %d\n", st.Size)
	fmt.Printf("maxLevelDepth:  %d\n", st.MaxLevelDepth)
	fmt.Printf("directoryNodes: %d\n", st.NodeCount)
	for _, lv := range st.Levels {
		fmt.Printf("  level %d: buckets=%d tombstoneChain=%v\n", lv.Level, lv.BucketsCount, lv.TombstoneChain)
	}
}
