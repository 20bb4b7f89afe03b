// pkg/task/task.go

// Package task runs the observe-decide-act loop that pursues a goal on a
// live page, recording each step for guide generation.
package task

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
	"github.com/xkilldash9x/guidecap-cli/internal/guide"
	"github.com/xkilldash9x/guidecap-cli/pkg/action"
	"github.com/xkilldash9x/guidecap-cli/pkg/browser"
	"github.com/xkilldash9x/guidecap-cli/pkg/index"
	"github.com/xkilldash9x/guidecap-cli/pkg/oracle"
)

type actionRunner interface {
	Execute(ctx context.Context, a action.Action) bool
}

type pageWaiter interface {
	Wait(ctx context.Context) bool
}

type elementMarker interface {
	Mark(ctx context.Context) []index.Descriptor
	Unmark(ctx context.Context)
	Highlight(ctx context.Context, marker int)
}

// Outcome summarizes a finished run.
type Outcome struct {
	Completed bool
	Steps     int
}

// Runner drives one goal on one page.
type Runner struct {
	page   browser.Page
	oracle oracle.Oracle
	marker elementMarker
	runner actionRunner
	waiter pageWaiter
	log    *guide.Log
	logger *zap.Logger
	cfg    config.TaskConfig
}

func NewRunner(
	page browser.Page,
	o oracle.Oracle,
	marker elementMarker,
	runner actionRunner,
	waiter pageWaiter,
	log *guide.Log,
	cfg config.TaskConfig,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		page:   page,
		oracle: o,
		marker: marker,
		runner: runner,
		waiter: waiter,
		log:    log,
		logger: logger.Named("task"),
		cfg:    cfg,
	}
}

// Run loops until the model reports the goal done or the step budget runs
// out. Individual step failures are recorded and the loop continues; only
// context cancellation stops it early.
func (r *Runner) Run(ctx context.Context, goal string) (Outcome, error) {
	var history []oracle.StepSummary

	for step := 1; step <= r.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Steps: step - 1}, err
		}

		elements := r.marker.Mark(ctx)
		loc, err := r.page.Location(ctx)
		if err != nil {
			r.logger.Warn("Could not read page location.", zap.Error(err))
		}
		screenshot, err := r.page.Screenshot(ctx)
		if err != nil {
			r.logger.Warn("Could not capture screenshot.", zap.Error(err))
		}

		a, err := r.oracle.NextAction(ctx, oracle.Query{
			Goal:       goal,
			URL:        loc.URL,
			Title:      loc.Title,
			Elements:   elements,
			History:    history,
			Screenshot: screenshot,
		})
		if err != nil {
			r.logger.Warn("Model call failed, waiting instead.", zap.Error(err))
			a = oracle.FallbackWait("model call failed")
		}

		r.logger.Info("Step decided.",
			zap.Int("step", step),
			zap.String("kind", string(a.Kind)),
			zap.String("target", a.Target),
			zap.String("description", a.StepDescription))

		if a.Kind == action.KindDone {
			r.marker.Unmark(ctx)
			r.record(a, loc, nil, true)
			return Outcome{Completed: true, Steps: step}, nil
		}

		// Reshoot with the target outlined so the guide shows what is about
		// to be clicked.
		if idx, idxErr := a.MarkerIndex(); idxErr == nil && a.CaptureScreenshot {
			r.marker.Highlight(ctx, idx)
			if lit, shotErr := r.page.Screenshot(ctx); shotErr == nil {
				screenshot = lit
			}
		}

		ok := r.runner.Execute(ctx, a)
		r.marker.Unmark(ctx)

		var shot []byte
		if a.CaptureScreenshot {
			shot = screenshot
		}
		r.record(a, loc, shot, ok)
		history = append(history, oracle.StepSummary{
			Description: a.StepDescription,
			Kind:        a.Kind,
			Success:     ok,
		})
		if !ok {
			r.logger.Warn("Step did not complete.", zap.String("description", a.StepDescription))
		}

		r.waiter.Wait(ctx)
	}

	// Running out of steps is a normal outcome: the guide so far is still
	// worth writing. Only faults like cancellation surface as errors.
	r.logger.Warn("Goal not reached within the step budget.", zap.Int("max_steps", r.cfg.MaxSteps))
	return Outcome{Completed: false, Steps: r.cfg.MaxSteps}, nil
}

func (r *Runner) record(a action.Action, loc browser.Location, screenshot []byte, ok bool) {
	if r.log == nil {
		return
	}
	description := a.StepDescription
	if description == "" {
		description = string(a.Kind)
	}
	r.log.Append(guide.Record{
		Description: description,
		Reasoning:   a.Reasoning,
		Kind:        string(a.Kind),
		Target:      a.Target,
		URL:         loc.URL,
		Title:       loc.Title,
		Success:     ok,
		Screenshot:  screenshot,
	})
}
