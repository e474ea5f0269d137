package servers

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"eventstore/pkg/resources"
)

// baseServer keeps the process resources alive and closes them, in order,
// when stopped.
type baseServer struct {
	name         string
	closeChannel chan struct{}
	closeOnce    sync.Once
	closables    []resources.Closable
}

func BuildBaseServer(closables ...resources.Closable) (string, Server) {
	return "base-server", NewBaseServer(closables...)
}

func NewBaseServer(closables ...resources.Closable) Server {
	return &baseServer{
		name:         "base-server",
		closeChannel: make(chan struct{}),
		closables:    closables,
	}
}

func (server *baseServer) Run(ctx context.Context) error {
	log.Ctx(ctx).Info().Str("stage", "startup").Str("component", server.name).Msg("starting up")

	<-server.closeChannel

	return nil
}

func (server *baseServer) Stop(ctx context.Context) error {
	log.Ctx(ctx).Info().Str("stage", "shut down").Str("component", server.name).Msg("stopping")
	defer log.Ctx(ctx).Info().Str("stage", "shut down").Str("component", server.name).Msg("stopped")

	var err error

	server.closeOnce.Do(func() {
		for _, closable := range server.closables {
			closeErr := closable.Close()
			if closeErr != nil {
				log.Ctx(ctx).Error().Str("stage", "shut down").Str("component", server.name).Err(closeErr).Msg("failed to close resource")

				if err == nil {
					err = ErrServerFailedToStop(server.name, closeErr)
				}
			}
		}

		close(server.closeChannel)
	})

	return err
}
