package servers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Build runs server in the background. A run error is sent to errChan
// unless the channel is full.
func Build(ctx context.Context, name string, server Server, errChan chan<- error) (Server, StopFn, error) {
	if server == nil {
		return nil, func(context.Context, time.Duration) {}, ErrServerNotProvided(name)
	}

	go func() {
		err := server.Run(ctx)
		if err == nil {
			return
		}

		select {
		case errChan <- err:
		default:
			log.Ctx(ctx).Error().Str("component", name).Err(err).Msg("runtime error dropped")
		}
	}()

	stopFn := func(ctx context.Context, timeout time.Duration) {
		stopCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancelFn()

		err := server.Stop(stopCtx)
		if err != nil {
			log.Ctx(ctx).Error().Str("stage", "shut down").Str("component", name).Err(err).Msg("unable to stop")
		}
	}

	return server, stopFn, nil
}
