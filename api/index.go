// Package handler is the serverless function entry point. The hosting
// platform calls Handler once per request; the pipeline is bootstrapped on the
// first call of each cold start.
package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/JakeFAU/empire-server/internal/adapter"
	"github.com/JakeFAU/empire-server/internal/config"
	"github.com/JakeFAU/empire-server/internal/middleware"
	"github.com/JakeFAU/empire-server/internal/server"
)

var (
	invoker     *adapter.Invoker
	invokerOnce sync.Once
)

func entry() *adapter.Invoker {
	invokerOnce.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			// Every invocation of this cold start serves the static fallback.
			invoker = adapter.NewInvoker(adapter.InvokerConfig{
				Build: func(context.Context) (http.Handler, error) { return nil, err },
				CORS:  middleware.NewCORSPolicy(config.DefaultAllowHeaders),
			})
			return
		}
		cfg.Server.Mode = config.ModeServerless
		invoker = server.NewInvoker(cfg)
	})
	return invoker
}

// Handler serves one invocation.
func Handler(w http.ResponseWriter, r *http.Request) {
	entry().ServeHTTP(w, r)
}
