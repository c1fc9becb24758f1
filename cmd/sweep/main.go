package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"

	"go.creack.net/threebit/batch"
	"go.creack.net/threebit/cli"
	"go.creack.net/threebit/runlog"
)

var logger = commonlog.GetLogger("threebit.sweep")

func main() {
	log.SetFlags(0)
	from := flag.Uint64("from", 0, "first value of register a")
	to := flag.Uint64("to", 63, "last value of register a")
	workers := flag.Int("workers", 0, "concurrent machines, default to GOMAXPROCS")
	flag.Usage = func() { cli.Usage(flag.CommandLine, "<.toml|.3b|example:name>") }

	s, err := cli.ParseConfig()
	if err != nil {
		flag.Usage()
		log.Fatalf("Failed to parse CLI config: %s.", err)
	}
	cli.InitLog(s.Log)
	if *to < *from {
		log.Fatalf("Invalid range: %d > %d.", *from, *to)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	jobs, err := batch.SweepA(s.Config(), *from, *to)
	if err != nil {
		log.Fatalf("Invalid range: %s.", err)
	}
	logger.Infof("sweeping %s over %d values", s.Image.Header.Name, len(jobs))
	results, err := batch.Run(ctx, jobs, batch.Options{Workers: *workers})
	if err != nil {
		log.Printf("Sweep interrupted: %s.", err)
	}

	var rl *runlog.Log
	if s.DB != "" {
		if rl, err = runlog.Open(context.Background(), s.DB); err != nil {
			log.Fatalf("Failed to open run log: %s.", err)
		}
		defer func() { _ = rl.Close() }() // Best effort.
	}

	digest := s.Image.Digest()
	for _, r := range results {
		line := fmt.Sprintf("%d\t%s\t%d\t%s", r.Job.Config.A, r.Status, r.Steps, cli.FormatOutput(r.Output))
		if r.Err != nil {
			line += "\t" + r.Err.Error()
		}
		fmt.Println(line)

		if rl == nil || !r.Started {
			continue
		}
		run := &runlog.Run{
			Digest:    digest,
			Name:      s.Image.Header.Name,
			Registers: r.Job.Config.Registers,
			Output:    r.Output,
			Status:    r.Status,
			Steps:     r.Steps,
		}
		if r.Err != nil {
			run.Error = r.Err.Error()
		}
		if err := rl.Record(context.Background(), run); err != nil {
			log.Fatalf("Failed to record run: %s.", err)
		}
	}

	if failed := batch.Failed(results); len(failed) > 0 {
		logger.Noticef("%d of %d runs did not halt", len(failed), len(results))
	}
	if skipped := batch.NotStarted(results); len(skipped) > 0 {
		logger.Noticef("%d of %d runs did not start", len(skipped), len(results))
	}
}
