// Package calc implements the deferred calculation a client can request with
// a trigger message. A calculation delivers exactly one result or none.
package calc

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Outcome describes how a calculation ended.
type Outcome int

const (
	// Completed means the result was handed to the results channel.
	Completed Outcome = iota
	// Aborted means the calculation was cancelled before delivering.
	Aborted
	// Dropped means the results channel stayed full past the send patience.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Calculator struct {
	clock    clockwork.Clock
	delay    time.Duration
	patience time.Duration
}

// New returns a calculator whose jobs finish delay after being scheduled and
// wait at most patience for room on a full results channel.
func New(clock clockwork.Clock, delay, patience time.Duration) *Calculator {
	return &Calculator{clock: clock, delay: delay, patience: patience}
}

// Schedule arms a new job. The delay starts counting now, not when Run is
// called.
func (c *Calculator) Schedule() *Job {
	return &Job{calc: c, timer: c.clock.NewTimer(c.delay)}
}

type Job struct {
	calc  *Calculator
	timer clockwork.Timer
}

// Run waits for the job's delay and sends one result on results. Cancelling
// ctx before the send guarantees that nothing is sent.
func (j *Job) Run(ctx context.Context, results chan<- string) Outcome {
	defer j.timer.Stop()

	select {
	case <-ctx.Done():
		return Aborted
	case <-j.timer.Chan():
	}
	if ctx.Err() != nil {
		return Aborted
	}

	result := fmt.Sprintf("calculation done at %s", j.calc.clock.Now().Format(time.RFC3339Nano))

	select {
	case results <- result:
		return Completed
	default:
	}

	patience := j.calc.clock.NewTimer(j.calc.patience)
	defer patience.Stop()

	select {
	case results <- result:
		return Completed
	case <-ctx.Done():
		return Aborted
	case <-patience.Chan():
		return Dropped
	}
}
