// Package batch runs independent optimizations in parallel.
package batch

import (
	"context"
	"runtime"
	"time"

	"github.com/fumin/mpopt/dmrg"
	"github.com/fumin/mpopt/mps"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Job is one optimization.
type Job struct {
	// ID identifies the job, a random one is assigned if empty.
	ID      string
	Name    string
	MPO     *mps.MPO
	Init    *mps.MPS
	Options dmrg.Options
}

// Outcome is the result of a job.
type Outcome struct {
	ID       string
	Name     string
	Result   dmrg.Result
	Err      error
	Duration time.Duration
}

// Run runs jobs on at most workers goroutines, runtime.NumCPU() if workers is not positive.
// Outcomes are in the order of jobs. The failure of a job is recorded in its outcome and does not affect the others.
// Jobs not yet started when ctx is done fail with the context error, which is also returned.
func Run(ctx context.Context, jobs []Job, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	outcomes := make([]Outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		outcomes[i] = Outcome{ID: job.ID, Name: job.Name}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = errors.Wrap(err, "")
				return nil
			}
			start := time.Now()
			outcomes[i].Result, outcomes[i].Err = run(job)
			outcomes[i].Duration = time.Since(start)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return outcomes, errors.Wrap(err, "")
	}
	return outcomes, nil
}

func run(job Job) (dmrg.Result, error) {
	if job.MPO == nil || job.Init == nil {
		return dmrg.Result{}, errors.Wrapf(mps.ErrConfiguration, "job %s has no operator or initial state", job.ID)
	}
	opt, err := dmrg.New(job.Options)
	if err != nil {
		return dmrg.Result{}, errors.Wrap(err, "")
	}
	res, err := opt.Run(job.MPO, job.Init)
	if err != nil {
		return res, errors.Wrap(err, job.ID)
	}
	return res, nil
}
