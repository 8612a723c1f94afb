package uploader

import (
	"context"
	"sync"
)

// Fake is a scripted Uploader for tests. Errors are consumed in order;
// once the script is exhausted every attempt succeeds.
type Fake struct {
	mu     sync.Mutex
	script []error
	jobs   []Job
}

func NewFake(script ...error) *Fake {
	return &Fake{script: script}
}

func (f *Fake) Upload(_ context.Context, job Job) (*Result, error) {
	if job.Progress != nil {
		job.Progress(0.5)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	if len(f.script) > 0 {
		err := f.script[0]
		f.script = f.script[1:]
		if err != nil {
			return nil, err
		}
	}
	return &Result{Metrics: &NetworkMetrics{}}, nil
}

// Jobs returns the jobs attempted so far, in order.
func (f *Fake) Jobs() []Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Job(nil), f.jobs...)
}
