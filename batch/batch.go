// Package batch runs independent machines concurrently.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"go.creack.net/threebit/vm"
)

var logger = commonlog.GetLogger("threebit.batch")

// Job is a single machine to run.
type Job struct {
	Name   string
	Config vm.Config
}

// Result of a job. Err is set when the machine trapped or timed out.
// A job that never started because ctx was done is reported with
// StatusTimeout and the context error.
type Result struct {
	Job      Job
	Started  bool
	Output   []uint8
	Status   vm.Status
	Steps    int
	Err      error
	Duration time.Duration
}

// Options of a batch.
type Options struct {
	Workers int // Concurrent machines, default to GOMAXPROCS.
}

// Run executes the jobs and returns one result per job, in job order.
// A failing job does not stop the others. When ctx is done by the end of the
// batch, the context error is returned along with the results, and the jobs
// that did not get to start are marked as timed out.
func Run(ctx context.Context, jobs []Job, opts Options) ([]Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(jobs))
	for i, job := range jobs {
		results[i] = Result{Job: job, Status: vm.StatusTimeout}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = runJob(gctx, job)
			return nil
		})
	}
	_ = g.Wait() // Jobs report their errors in their result.

	if err := ctx.Err(); err != nil {
		for i := range results {
			if !results[i].Started {
				results[i].Err = err
			}
		}
		return results, fmt.Errorf("batch: %w", err)
	}
	return results, nil
}

func runJob(ctx context.Context, job Job) Result {
	start := time.Now()
	m := vm.New(job.Config)
	out, err := m.RunContext(ctx)
	res := Result{
		Job:      job,
		Started:  true,
		Output:   out,
		Status:   m.Status,
		Steps:    m.Steps,
		Err:      err,
		Duration: time.Since(start),
	}
	if err != nil {
		logger.Debugf("job %s: %s after %d steps: %s", job.Name, m.Status, m.Steps, err)
	}
	return res
}

// MaxSweep is the largest number of jobs SweepA builds.
const MaxSweep = 1 << 20

// SweepA builds one job per initial A value in [from, to].
func SweepA(base vm.Config, from, to uint64) ([]Job, error) {
	if to < from {
		return nil, nil
	}
	if to-from >= MaxSweep {
		return nil, fmt.Errorf("range %d..%d exceeds %d values", from, to, MaxSweep)
	}
	jobs := make([]Job, 0, to-from+1)
	for a := from; ; a++ {
		cfg := base
		cfg.A = a
		jobs = append(jobs, Job{Name: fmt.Sprintf("a=%d", a), Config: cfg})
		if a == to {
			break
		}
	}
	return jobs, nil
}

// Failed returns the results of the jobs that ran and did not halt.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Started && r.Status != vm.StatusHalted {
			out = append(out, r)
		}
	}
	return out
}

// NotStarted returns the results of the jobs skipped because the batch
// was canceled.
func NotStarted(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Started {
			out = append(out, r)
		}
	}
	return out
}
