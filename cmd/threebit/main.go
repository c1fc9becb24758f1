package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"

	"go.creack.net/threebit/cli"
	"go.creack.net/threebit/disasm"
	"go.creack.net/threebit/runlog"
	"go.creack.net/threebit/vm"
)

var logger = commonlog.GetLogger("threebit")

// Exit codes.
const (
	exitTrapped = 2
	exitTimeout = 3
)

func trace(m *vm.Machine) {
	ins, ok, _ := vm.Decode(m.Code, m.PC)
	if !ok {
		fmt.Fprintf(os.Stderr, "%6d  %s\n", m.Steps, m)
		return
	}
	fmt.Fprintf(os.Stderr, "%6d  %s  %s\n", m.Steps, m, ins)
}

func run(ctx context.Context, s *cli.Setup, traceMode, dumpMode bool) (*vm.Machine, error) {
	m := vm.New(s.Config())
	if dumpMode {
		fmt.Print(disasm.HexDump(m.Code, -1))
	}
	logger.Infof("running %s (%d bytes)", s.Image.Header.Name, len(m.Code))

	if !traceMode {
		_, err := m.RunContext(ctx)
		return m, err
	}
	for {
		trace(m)
		ok, err := m.StepContext(ctx)
		if err != nil {
			return m, err
		}
		if !ok {
			return m, nil
		}
	}
}

func record(ctx context.Context, path string, s *cli.Setup, m *vm.Machine) error {
	l, err := runlog.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer func() { _ = l.Close() }() // Best effort.

	r := runlog.NewRun(s.Image.Header.Name, s.Image.Digest(), m)
	if err := l.Record(ctx, r); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	logger.Infof("recorded run %s", r.ID)
	return nil
}

func main() {
	log.SetFlags(0)
	traceMode := flag.Bool("trace", false, "print the machine state before each step")
	dumpMode := flag.Bool("dump", false, "print a hex dump of the program before running")
	flag.Usage = func() { cli.Usage(flag.CommandLine, "<.toml|.3b|example:name>") }

	s, err := cli.ParseConfig()
	if err != nil {
		flag.Usage()
		log.Fatalf("Failed to parse CLI config: %s.", err)
	}
	cli.InitLog(s.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	m, runErr := run(ctx, s, *traceMode, *dumpMode)
	fmt.Println(cli.FormatOutput(m.Output))

	if s.DB != "" {
		if err := record(context.Background(), s.DB, s, m); err != nil {
			log.Printf("Failed to record run: %s.", err)
		}
	}

	if runErr != nil {
		log.Printf("%s: %s.", m.Status, runErr)
		switch {
		case vm.Trapped(runErr):
			os.Exit(exitTrapped)
		case errors.Is(runErr, vm.ErrStepLimit), m.Status == vm.StatusTimeout:
			os.Exit(exitTimeout)
		default:
			os.Exit(1)
		}
	}
}
