package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pubwire-dev/pubwire/pkg/protocol"
	"github.com/pubwire-dev/pubwire/pkg/service"
	"github.com/pubwire-dev/pubwire/pkg/upstream"
)

const connectionStringEnv = "PUBWIRE_CONNECTION_STRING"

func serveCmd() *cobra.Command {
	var (
		addr             string
		hub              string
		connectionString string
		logJSON          bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upstream event handler",
		Long: `Run the upstream event handler and negotiate endpoint.

The relay connection string is read from --connection-string or the
` + connectionStringEnv + ` environment variable. Demo event handlers
(echo, processOrder, slowEvent) are registered for the invoke command
to exercise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if connectionString == "" {
				connectionString = os.Getenv(connectionStringEnv)
			}
			if connectionString == "" {
				return fmt.Errorf("no connection string: set --connection-string or %s", connectionStringEnv)
			}

			logger := newLogger(logJSON)
			slog.SetDefault(logger)

			info, err := service.ParseConnectionString(connectionString)
			if err != nil {
				return err
			}

			cfg := upstream.DefaultConfig().
				WithTokens(service.NewTokenProvider(info, hub)).
				WithLogger(logger.With("component", "upstream"))
			dispatcher := upstream.NewDispatcher(cfg)
			registerDemoHandlers(dispatcher)

			srv := &http.Server{
				Addr:              addr,
				Handler:           dispatcher.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("upstream listening", "addr", addr, "hub", hub)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&hub, "hub", "chat", "Hub name")
	cmd.Flags().StringVar(&connectionString, "connection-string", "", "Relay connection string")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs")

	return cmd
}

func newLogger(jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// registerDemoHandlers wires the sample events the invoke command drives.
func registerDemoHandlers(d *upstream.Dispatcher) {
	d.HandleFunc("echo", func(_ context.Context, req *upstream.EventRequest) (*upstream.EventResponse, error) {
		return &upstream.EventResponse{DataType: req.DataType, Data: req.Data}, nil
	})

	d.HandleFunc("processOrder", func(_ context.Context, req *upstream.EventRequest) (*upstream.EventResponse, error) {
		if req.DataType != protocol.DataTypeJSON {
			return nil, upstream.Errorf(http.StatusBadRequest, "processOrder expects a JSON payload")
		}
		var order map[string]any
		if err := json.Unmarshal(req.Data, &order); err != nil {
			return nil, upstream.Errorf(http.StatusBadRequest, "malformed order: %v", err)
		}
		order["status"] = "completed"
		data, err := json.Marshal(order)
		if err != nil {
			return nil, err
		}
		return &upstream.EventResponse{DataType: protocol.DataTypeJSON, Data: data}, nil
	})

	d.HandleFunc("slowEvent", func(ctx context.Context, req *upstream.EventRequest) (*upstream.EventResponse, error) {
		var payload struct {
			Delay float64 `json:"delay"`
		}
		if len(req.Data) > 0 {
			if err := json.Unmarshal(req.Data, &payload); err != nil {
				return nil, upstream.Errorf(http.StatusBadRequest, "malformed payload: %v", err)
			}
		}
		// Runs to completion even when the invoking client has already
		// timed out; the relay drops the late response.
		delay := time.Duration(payload.Delay * float64(time.Second))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.New("delivery aborted")
		}
		return &upstream.EventResponse{
			DataType: protocol.DataTypeJSON,
			Data:     fmt.Appendf(nil, `{"sleptSeconds":%g}`, payload.Delay),
		}, nil
	})
}
