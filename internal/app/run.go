package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"rbz-rates-watcher/internal/pipeline"
	"rbz-rates-watcher/internal/scheduler"
)

// RunOnce executes a single pipeline pass for today and reports its outcome.
func (a *App) RunOnce(ctx context.Context, force bool) (pipeline.Result, error) {
	rt, err := a.newRuntime(ctx)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer rt.close()

	return rt.run(ctx, rt.strategies, pipeline.RunOptions{Force: force})
}

// Watch runs the pipeline on the configured schedule until interrupted.
// Tick failures are logged by the scheduler and the loop keeps going; only
// cancellation stops it.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Scheduler.Interval,
		AlignToInterval: a.Config.Scheduler.AlignToInterval,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting watch loop")
	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		result, err := rt.run(ctx, rt.strategies, pipeline.RunOptions{})
		if err != nil {
			return err
		}
		a.Logger.Info().
			Str("status", string(result.Status)).
			Str("run_id", result.RunID).
			Msg("watch tick finished")
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch loop terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch loop stopped")
	return nil
}
