package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"

	"chordkv/internal/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4000", "address of the ring node to contact")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	log.SetFlags(0)

	args := flag.Args()
	if len(args) == 0 {
		repl(*addr, *timeout)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	os.Exit(runCommand(ctx, *addr, args))
}

// repl runs an interactive, history-enabled shell against a single node
// at a time, switchable with "use <addr>". It never exits the process on
// a command error; exit codes only matter for single-shot invocation.
func repl(addr string, timeout time.Duration) {
	current := addr
	fmt.Printf("chordkv interactive client. Connected to %s\n", current)
	fmt.Println("Commands: insert/query/delete/depart/overlay/scan/use/help/exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(fmt.Sprintf("chordkv[%s]> ", current))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "use":
			if len(args) < 2 {
				fmt.Println("usage: use <addr>")
				continue
			}
			current = args[1]
			fmt.Printf("switched to %s\n", current)
		case "exit", "quit":
			fmt.Println("bye")
			return
		default:
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			runCommand(ctx, current, args)
			cancel()
		}
	}
}

// runCommand executes one command against addr, printing its result, and
// returns the exit code the CLI contract assigns it: 0 on success, 1 on
// a protocol/transport/membership error, 2 on a usage error.
func runCommand(ctx context.Context, addr string, args []string) int {
	switch args[0] {
	case "help":
		printHelp()
		return 0

	case "insert":
		return runInsert(ctx, addr, args[1:])

	case "query":
		return runQuery(ctx, addr, args[1:])

	case "delete":
		if len(args) != 2 {
			fmt.Println("usage: delete <key>")
			return 2
		}
		elapsed, err := client.Delete(ctx, addr, args[1])
		if err != nil {
			fmt.Printf("delete failed: %v | latency=%s\n", err, elapsed)
			return classify(err)
		}
		fmt.Printf("deleted key=%s | latency=%s\n", args[1], elapsed)
		return 0

	case "depart":
		elapsed, err := client.Depart(ctx, addr)
		if err != nil {
			fmt.Printf("depart failed: %v | latency=%s\n", err, elapsed)
			return classify(err)
		}
		fmt.Printf("node departed | latency=%s\n", elapsed)
		return 0

	case "overlay":
		overlay, elapsed, err := client.Overlay(ctx, addr)
		if err != nil {
			fmt.Printf("overlay failed: %v | latency=%s\n", err, elapsed)
			return classify(err)
		}
		fmt.Printf("self: %s\n", overlay.Self.Addr())
		if overlay.Predecessor != nil {
			fmt.Printf("predecessor: %s\n", overlay.Predecessor.Addr())
		} else {
			fmt.Println("predecessor: (none)")
		}
		fmt.Println("successors:")
		for i, s := range overlay.SuccessorList {
			fmt.Printf("  [%d] %s\n", i, s.Addr())
		}
		fmt.Printf("latency=%s\n", elapsed)
		return 0

	case "scan":
		items, elapsed, err := client.Scan(ctx, addr)
		if err != nil {
			fmt.Printf("scan failed: %v | latency=%s\n", err, elapsed)
			return classify(err)
		}
		for _, it := range items {
			fmt.Printf("  %s = %s\n", it.RawKey, it.Value)
		}
		fmt.Printf("count=%d | latency=%s\n", len(items), elapsed)
		return 0

	default:
		fmt.Printf("unknown command: %s\n", args[0])
		printHelp()
		return 2
	}
}

func runInsert(ctx context.Context, addr string, args []string) int {
	if len(args) == 2 && args[0] == "-f" {
		return bulkFromFile(args[1], func(line string) int {
			fields := strings.SplitN(line, " ", 2)
			if len(fields) != 2 {
				fmt.Printf("skipping malformed line: %q\n", line)
				return 0
			}
			elapsed, err := client.Insert(ctx, addr, fields[0], fields[1])
			if err != nil {
				fmt.Printf("insert %s failed: %v | latency=%s\n", fields[0], err, elapsed)
				return classify(err)
			}
			fmt.Printf("inserted %s | latency=%s\n", fields[0], elapsed)
			return 0
		})
	}
	if len(args) != 2 {
		fmt.Println("usage: insert <key> <value>  |  insert -f <file>")
		return 2
	}
	elapsed, err := client.Insert(ctx, addr, args[0], args[1])
	if err != nil {
		fmt.Printf("insert failed: %v | latency=%s\n", err, elapsed)
		return classify(err)
	}
	fmt.Printf("inserted key=%s | latency=%s\n", args[0], elapsed)
	return 0
}

func runQuery(ctx context.Context, addr string, args []string) int {
	if len(args) == 2 && args[0] == "-f" {
		return bulkFromFile(args[1], func(line string) int {
			key := strings.TrimSpace(line)
			if key == "" {
				return 0
			}
			value, found, elapsed, err := client.Query(ctx, addr, key)
			if err != nil {
				fmt.Printf("query %s failed: %v | latency=%s\n", key, err, elapsed)
				return classify(err)
			}
			if !found {
				fmt.Printf("not found: %s | latency=%s\n", key, elapsed)
				return 0
			}
			fmt.Printf("%s = %s | latency=%s\n", key, value, elapsed)
			return 0
		})
	}
	if len(args) != 1 {
		fmt.Println("usage: query <key>  |  query -f <file>")
		return 2
	}
	value, found, elapsed, err := client.Query(ctx, addr, args[0])
	if err != nil {
		fmt.Printf("query failed: %v | latency=%s\n", err, elapsed)
		return classify(err)
	}
	if !found {
		fmt.Printf("not found: %s | latency=%s\n", args[0], elapsed)
		return 0
	}
	fmt.Printf("%s = %s | latency=%s\n", args[0], value, elapsed)
	return 0
}

// bulkFromFile runs fn once per non-blank line of path, reporting the
// worst exit code seen: a malformed line is skipped, not fatal, but any
// protocol or transport failure downgrades the overall result to 1.
func bulkFromFile(path string, fn func(line string) int) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("cannot open %s: %v\n", path, err)
		return 2
	}
	defer f.Close()

	code := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if c := fn(line); c > code {
			code = c
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("error reading %s: %v\n", path, err)
		return 2
	}
	return code
}

// classify maps an RPC error to an exit code. Bad CLI args are caught
// before any network call and return 2 directly; here a usage error
// reported by the server also maps to 2, and any other error (protocol,
// transport, or membership) maps to 1.
func classify(err error) int {
	if client.IsUsageError(err) {
		return 2
	}
	return 1
}

func printHelp() {
	fmt.Println(`commands:
  insert <key> <value>   insert a mapping
  insert -f <file>       bulk insert, one "<key> <value>" per line
  query <key>            fetch a value
  query -f <file>        bulk query, one key per line
  delete <key>           remove a mapping
  depart                 graceful departure of the contacted node
  overlay                list every live endpoint in the ring, rotated to the contacted node
  scan                   list every depth-0 item held anywhere in the ring
  use <addr>             (REPL only) retarget to a different node
  help                   this text
  exit, quit             (REPL only) leave the shell`)
}
