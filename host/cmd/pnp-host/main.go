package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"gopnp/host/mcu"
	"gopnp/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", serial.DefaultBaud, "Baud rate (ignored for USB CDC)")
	job     = flag.String("file", "", "Send a G-code file and exit")
	timeout = flag.Duration("timeout", 30*time.Second, "Reply timeout per command")
	verbose = flag.Bool("verbose", false, "Enable verbose output")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logrus.NewEntry(logger).WithField("device", *device)

	conn := mcu.NewMCU(log)
	conn.Timeout = *timeout
	conn.Notify = func(line string) { fmt.Printf("# %s\n", line) }

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	if err := conn.ConnectWithConfig(cfg); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	// Startup banner or homing error
	conn.Drain(500 * time.Millisecond)

	if *job != "" {
		if err := sendFile(conn, *job); err != nil {
			log.Fatal(err)
		}
		return
	}

	fmt.Println("Enter G-code or a command (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "quit", "exit", "q":
			return

		case "help", "?":
			printHelp()

		case "file":
			if len(parts) != 2 {
				fmt.Println("usage: file <path>")
				continue
			}
			if err := sendFile(conn, parts[1]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "send":
			// send "G0 X10 Y20" "M114"
			for _, cmd := range parts[1:] {
				send(conn, cmd)
			}

		case "home":
			send(conn, "G28")

		case "pos":
			send(conn, "M114")

		case "sense":
			for _, n := range []string{"N1", "N2", "N3"} {
				send(conn, "M105 "+n)
			}

		default:
			send(conn, line)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("reading input: %v", err)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  <gcode>             - Send a line as typed (G0, G28, M800, M105, M114)")
	fmt.Println("  send \"<gcode>\" ...  - Send one or more quoted lines")
	fmt.Println("  file <path>         - Stream a G-code file, stopping at the first error")
	fmt.Println("  home                - Re-home the machine (G28)")
	fmt.Println("  pos                 - Report the position (M114)")
	fmt.Println("  sense               - Read both part sensors and the vacuum pressure")
	fmt.Println("  quit/exit/q         - Exit the program")
	fmt.Println()
}

func send(conn *mcu.MCU, line string) {
	reply, err := conn.Send(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	printReply(reply)
}

func printReply(reply *mcu.Reply) {
	if reply.Fatal {
		fmt.Printf("rejected: %s\n", reply.Echo)
		return
	}
	for _, out := range reply.Output {
		fmt.Println(out)
	}
	if len(reply.Output) == 0 {
		fmt.Println("ok")
	}
}

func sendFile(conn *mcu.MCU, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open job")
	}
	defer f.Close()

	return conn.SendFile(f, func(n int, reply *mcu.Reply) {
		fmt.Printf("%4d %s\n", n, reply.Echo)
		for _, out := range reply.Output {
			fmt.Printf("     %s\n", out)
		}
	})
}
