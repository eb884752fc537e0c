package pipeline

import (
	"context"
	"log/slog"
)

// Step is one stage of candidate processing.
//
// A step that decides the outcome settles the job and returns nil. An error
// is reserved for conditions that must stop the run: cancellation and
// storage failures. Candidate-level failures never surface as errors.
type Step interface {
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Finalizer is implemented by steps that still run once an earlier step
// settled the job, such as the step writing the outcome.
type Finalizer interface {
	Finalizes() bool
}

// Pipeline runs the steps of one candidate in order.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps for one job.
//
// Once the job is settled only Finalizer steps run. Cancellation is
// checked before every step, so a cancelled job never writes an outcome it
// had not written yet.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Debug("pipeline cancelled",
				"step", step.Name(),
				"url", job.Candidate.URL,
				"reason", err,
			)
			return err
		}

		if job.Settled() && !finalizes(step) {
			continue
		}

		if err := step.Do(ctx, job); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"source", job.Candidate.SourceID,
				"url", job.Candidate.URL,
				"error", err,
			)
			return err
		}
		job.Steps = append(job.Steps, step.Name())
	}

	p.logger.Debug("candidate processed",
		"source", job.Candidate.SourceID,
		"url", job.Candidate.URL,
		"status", job.Status,
		"reason", job.Reason,
	)
	return nil
}

func finalizes(step Step) bool {
	f, ok := step.(Finalizer)
	return ok && f.Finalizes()
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
