package servers

import (
	"context"
	"net/http"
	"time"

	"github.com/qmdx00/lifecycle"
	"github.com/robfig/cron/v3"
)

var (
	_ Server = (*httpServer)(nil)
	_ Server = (*baseServer)(nil)
	_ Server = (*cronServer)(nil)
)

type Server interface {
	lifecycle.Server
}

var (
	_ CronServer = (*cron.Cron)(nil)
)

type CronServer interface {
	Start()
	Stop() context.Context
}

// StopFn stops a running server, waiting at most timeout.
type StopFn func(ctx context.Context, timeout time.Duration)

//

var (
	_ BuildHttpServerFn = BuildHttpServer
)

type BuildHttpServerFn func(name string, server *http.Server) (string, Server)
