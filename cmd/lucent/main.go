// cmd/lucent is the ambient CLI spec.md §6 names alongside the embedding
// API: run a script, drop into a REPL, or run a script under the sampling
// profiler and dump its HTML report.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"lucent"
	"lucent/internal/diagnostics"
	"lucent/internal/object"
)

var stderrIsTTY = isatty.IsTerminal(os.Stderr.Fd())

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		if len(os.Args) < 3 {
			fatal("usage: lucent run <file>")
		}
		cmdRun(os.Args[2])
	case "repl":
		cmdRepl()
	case "profile":
		if len(os.Args) < 3 {
			fatal("usage: lucent profile <file> [out.html]")
		}
		out := "profile.html"
		if len(os.Args) >= 4 {
			out = os.Args[3]
		}
		cmdProfile(os.Args[2], out)
	case "--help", "-h", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "lucent: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`lucent - an embeddable dynamic scripting runtime

Usage:
  lucent run <file>              run a script
  lucent repl                    start an interactive REPL
  lucent profile <file> [out]    run a script under the sampling profiler
                                  and write an HTML report (default profile.html)`)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

// reportingSink relays diagnostics.Sink.Log calls straight to stderr,
// color-highlighted when it's a terminal.
type reportingSink struct{}

func (reportingSink) Log(level, msg string, fields ...any) {
	if stderrIsTTY && level == "error" {
		fmt.Fprintf(os.Stderr, "\x1b[31m[%s] %s\x1b[0m %v\n", level, msg, fields)
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] %s %v\n", level, msg, fields)
}

func cmdRun(path string) {
	src, err := os.ReadFile(path)
	if err != nil {
		fatal(err.Error())
	}

	s := lucent.NewRoot(path, reportingSink{})
	m, perr := lucent.ParseModule(src, path, reportingSink{})
	if perr != nil {
		fatal(perr.Error())
	}
	if _, err := s.Run(m); err != nil {
		fatal(err.Error())
	}
}

func cmdRepl() {
	fmt.Println("lucent REPL | type 'exit' to quit")
	scanner := bufio.NewScanner(os.Stdin)

	s := lucent.NewRoot("<repl>", reportingSink{})

	for {
		fmt.Print(">>> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "exit" {
			break
		}
		if line == "" {
			continue
		}

		m, perr := lucent.ParseModule([]byte(line), "<repl>", reportingSink{})
		if perr != nil {
			fmt.Fprintln(os.Stderr, perr.Error())
			continue
		}
		result, err := s.Run(m)
		if err != nil {
			if de, ok := err.(*diagnostics.Error); ok {
				fmt.Fprintln(os.Stderr, de.Error())
			} else {
				fmt.Fprintln(os.Stderr, err)
			}
			continue
		}
		if result != nil {
			fmt.Println(object.Stringify(result))
		}
	}
}

func cmdProfile(path, outPath string) {
	src, err := os.ReadFile(path)
	if err != nil {
		fatal(err.Error())
	}

	s := lucent.NewRoot(path, reportingSink{})
	s.EnableProfiler()

	m, perr := lucent.ParseModule(src, path, reportingSink{})
	if perr != nil {
		fatal(perr.Error())
	}
	if _, err := s.Run(m); err != nil {
		fatal(err.Error())
	}

	f, err := os.Create(outPath)
	if err != nil {
		fatal(err.Error())
	}
	defer f.Close()

	if err := s.DumpProfile(f); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("wrote profile report to %s\n", outPath)
}
