package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/sushant-115/dwaldb/kv"
)

var store *kv.Store

func performSet(key, value string) {
	if err := store.Set([]byte(key), []byte(value)); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK (staged, run 'commit' to persist)")
}

func performClear(begin, end string) {
	if err := store.Clear([]byte(begin), []byte(end)); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK (staged, run 'commit' to persist)")
}

func performGet(key string) {
	v, err := store.ReadValue([]byte(key))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if v == nil {
		fmt.Println("NOT_FOUND")
		return
	}
	fmt.Printf("VALUE: %s\n", v)
}

func performCommit() {
	v, err := store.Commit()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("OK committed version=%d\n", v)
}

func performRange(begin, end string, rowLimit, byteLimit int) {
	result, err := store.ReadRange([]byte(begin), []byte(end), rowLimit, byteLimit)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, row := range result.Rows {
		fmt.Printf("%s = %s\n", row.Key, row.Value)
	}
	fmt.Printf("rows=%d more=%v\n", len(result.Rows), result.More)
}

func performStatus() {
	b := store.StorageBytes()
	fmt.Printf("total=%d used=%d free=%d available=%d\n", b.Total, b.Used, b.Free, b.Available)
}

func processCommand(args []string) {
	if len(args) == 0 {
		fmt.Println("Error: No command provided.")
		return
	}

	command := strings.ToLower(args[0])

	switch command {
	case "put", "set":
		if len(args) < 3 {
			fmt.Println("Error: put command requires a key and a value.")
			return
		}
		performSet(args[1], strings.Join(args[2:], " "))
	case "get":
		if len(args) < 2 {
			fmt.Println("Error: get command requires a key.")
			return
		}
		performGet(args[1])
	case "clear":
		if len(args) < 3 {
			fmt.Println("Error: clear command requires a begin and an end key.")
			return
		}
		performClear(args[1], args[2])
	case "range":
		if len(args) < 3 {
			fmt.Println("Error: range command requires a begin and an end key.")
			return
		}
		rowLimit := 1000
		byteLimit := 0
		if len(args) >= 4 {
			n, err := strconv.Atoi(args[3])
			if err != nil {
				fmt.Println("Error: row limit must be an integer.")
				return
			}
			rowLimit = n
		}
		if len(args) >= 5 {
			n, err := strconv.Atoi(args[4])
			if err != nil {
				fmt.Println("Error: byte limit must be an integer.")
				return
			}
			byteLimit = n
		}
		performRange(args[1], args[2], rowLimit, byteLimit)
	case "commit":
		performCommit()
	case "status":
		performStatus()
	case "help":
		fmt.Println("Commands:")
		fmt.Println("  put <key> <value>")
		fmt.Println("  get <key>")
		fmt.Println("  clear <begin> <end>")
		fmt.Println("  range <begin> <end> [rowLimit] [byteLimit]")
		fmt.Println("  commit")
		fmt.Println("  status")
		fmt.Println("  help")
		fmt.Println("  exit / quit")
	case "exit", "quit":
		fmt.Println("Exiting dwaldb CLI.")
		closeAndExit(0)
	default:
		fmt.Println("Error: Unknown command. Type 'help' for a list of commands.")
	}
}

func closeAndExit(code int) {
	if err := store.Close(); err != nil {
		fmt.Printf("Error closing store: %v\n", err)
	}
	os.Exit(code)
}

func main() {
	log.SetFlags(0)

	path := "./dwaldb.data"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg := kv.DefaultConfig(path)
	cfg.Log.Format = "console"

	var err error
	store, err = kv.Open(cfg, nil)
	if err != nil {
		log.Fatalf("failed to open store at %s: %v", path, err)
	}

	rl, err := readline.New("dwaldb> ")
	if err != nil {
		log.Fatalf("failed to start readline: %v", err)
	}
	defer rl.Close()

	fmt.Println("dwaldb CLI. Type 'help' for commands, 'exit' or 'quit' to leave.")
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				fmt.Println("\nExiting dwaldb CLI.")
				closeAndExit(0)
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		processCommand(strings.Fields(line))
	}
}
