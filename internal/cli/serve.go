package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	httpadapter "github.com/tuchang/junit5/pkg/adapters/http"
	"github.com/tuchang/junit5/pkg/adapters/mcp"
)

const shutdownTimeout = 5 * time.Second

// Serve exposes env over HTTP on addr until ctx is done.
func Serve(ctx context.Context, env *Environment, addr, version string, out io.Writer) error {
	srv := &http.Server{
		Addr: addr,
		Handler: httpadapter.NewHandler(env.Launcher,
			httpadapter.WithResults(env.Results),
			httpadapter.WithMetrics(env.Metrics),
			httpadapter.WithVersion(version),
			httpadapter.WithLogger(env.Logger),
		),
	}

	serverErrors := make(chan error, 1)
	go func() {
		printSystemMessage(out, "Serving junit5 on %s", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete in %v: %w", shutdownTimeout, err)
		}
		printSystemMessage(out, "Server stopped gracefully")
		return nil
	}
}

// ServeMCP exposes env as an MCP server, on stdio when addr is empty and
// over SSE otherwise.
func ServeMCP(ctx context.Context, env *Environment, addr, version string) error {
	s := mcp.NewServer(env.Launcher, version,
		mcp.WithResults(env.Results),
		mcp.WithLogger(env.Logger),
	)
	if addr == "" {
		return s.ServeStdio()
	}
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return s.ServeSSE(ctx, addr, "http://"+host)
}
