// Command radioflash-monitor is a workstation-side tool that connects
// to a sender node's USB/serial diagnostics link and displays STATS
// telemetry as it arrives. It never touches the radio itself — that
// traffic is between embedded nodes only.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/google/shlex"

	"radioflash/diagnostics"
	"radioflash/host/serial"
	"radioflash/wireframe"
)

var (
	device = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud   = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
)

func main() {
	flag.Parse()

	fmt.Println("radioflash-monitor - diagnostics telemetry viewer")
	fmt.Println("==================================================")
	fmt.Println()

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	port, err := serial.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open %s: %v\n", *device, err)
		os.Exit(1)
	}
	defer port.Close()

	fmt.Printf("Connected to %s\n", *device)

	recorder := newStatsRecorder()
	go func() {
		if err := diagnostics.Monitor(port, recorder.add); err != nil {
			fmt.Fprintf(os.Stderr, "\ndiagnostics link closed: %v\n", err)
		}
	}()

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		args, err := shlex.Split(scanner.Text())
		if err != nil || len(args) == 0 {
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			continue
		}

		switch args[0] {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "watch":
			fmt.Println("(already watching in the background; use 'dump <recID>' or 'list')")

		case "list":
			for _, recID := range recorder.recIDs() {
				fmt.Printf("  receiver %d: %d report(s)\n", recID, recorder.count(recID))
			}

		case "dump":
			if len(args) != 2 {
				fmt.Println("usage: dump <recID>")
				continue
			}
			recID, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Printf("invalid recID %q\n", args[1])
				continue
			}
			for _, s := range recorder.get(uint16(recID)) {
				fmt.Printf("  recID=%d nak_rounds=%d elapsed_ms=%d packets_sent=%d\n",
					s.RecID, s.NAKRounds, s.ElapsedMS, s.PacketsSent)
			}

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", args[0])
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println()
	fmt.Println("Available commands:")
	fmt.Println("  list             - Show receivers heard from so far and their report counts")
	fmt.Println("  dump <recID>     - Print every STATS report received from recID")
	fmt.Println("  watch            - No-op: telemetry is always collected in the background")
	fmt.Println("  quit/exit/q      - Exit the program")
	fmt.Println()
}

// statsRecorder keeps every STATS report seen, grouped by receiver ID,
// so the interactive loop above can answer 'list'/'dump' without
// re-reading the serial port.
type statsRecorder struct {
	mu   sync.Mutex
	byID map[uint16][]wireframe.Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{byID: make(map[uint16][]wireframe.Stats)}
}

func (r *statsRecorder) add(s wireframe.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.RecID] = append(r.byID[s.RecID], s)
}

func (r *statsRecorder) get(recID uint16) []wireframe.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wireframe.Stats(nil), r.byID[recID]...)
}

func (r *statsRecorder) count(recID uint16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID[recID])
}

func (r *statsRecorder) recIDs() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint16, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	return out
}
