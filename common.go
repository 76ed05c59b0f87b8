package libbuild

import (
	"context"
	"log/slog"
	"time"
)

// stage is one named step of the pipeline.
type stage struct {
	name StageName
	run  func(ctx context.Context) error
}

// runStages executes stages strictly in order.
//
// # Process Flow
//
//  1. Check the context; a cancelled run halts before the next stage
//  2. Log the stage banner
//  3. Run the stage
//  4. Record the stage in Result.Stages on success
//
// The first error halts the run and is returned as a *StageError naming the
// stage. Nothing is retried; later stages never run after a failure.
func runStages(ctx context.Context, logger *slog.Logger, result *Result, stages []stage) error {
	for i, s := range stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: s.name, Err: err}
		}

		logger.Info("stage started", "stage", s.name, "step", i+1, "of", len(stages))
		start := time.Now()

		if err := s.run(ctx); err != nil {
			logger.Error("stage failed", "stage", s.name, "error", err)
			return &StageError{Stage: s.name, Err: err}
		}

		result.Stages = append(result.Stages, s.name)
		logger.Debug("stage finished", "stage", s.name, "duration", time.Since(start))
	}
	return nil
}
