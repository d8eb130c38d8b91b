package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/grantcheck/internal/store"
	"github.com/sells-group/grantcheck/internal/verify"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server for verification runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initVerify(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := buildRouter(ctx, env)

		// Optional in-process schedule; the external clock trigger remains
		// the primary mechanism.
		if cfg.Verify.ScheduleIntervalHours > 0 {
			sched := verify.NewScheduler(
				time.Duration(cfg.Verify.ScheduleIntervalHours)*time.Hour,
				func(ctx context.Context) {
					env.Orchestrator.Run(ctx, verify.NewBudget(batchBudget()))
				},
			)
			go sched.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func batchBudget() time.Duration {
	return time.Duration(cfg.Verify.BatchBudgetSecs) * time.Second
}

// batchGroup collapses concurrent batch triggers onto a single run: the
// store is mutated by exactly one batch writer at a time.
var batchGroup singleflight.Group

func buildRouter(ctx context.Context, env *verifyEnv) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := env.Store.Ping(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireSharedSecret(cfg.Server.AuthToken))

		r.Post("/verify/{grantID}", func(w http.ResponseWriter, req *http.Request) {
			grantID := chi.URLParam(req, "grantID")

			outcome, err := env.Verifier.Verify(req.Context(), grantID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "grant not found"})
					return
				}
				zap.L().Error("on-demand verification failed",
					zap.String("grant_id", grantID),
					zap.Error(err),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "verification failed"})
				return
			}

			writeJSON(w, http.StatusOK, outcome)
		})

		r.Post("/verify/batch", func(w http.ResponseWriter, req *http.Request) {
			// Total infrastructure failure is the only hard failure; the
			// summary itself reports per-item failures with a 200.
			if err := env.Store.Ping(req.Context()); err != nil {
				zap.L().Error("batch trigger refused, store unreachable", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store unreachable"})
				return
			}

			summary, _, _ := batchGroup.Do("batch", func() (any, error) {
				// Run off the request context so a dropped trigger
				// connection does not abort the batch mid-run.
				return env.Orchestrator.Run(ctx, verify.NewBudget(batchBudget())), nil
			})

			writeJSON(w, http.StatusOK, summary)
		})
	})

	return r
}

// requireSharedSecret authorizes scheduled and on-demand triggers with a
// shared secret distinct from end-user credentials. An unset secret disables
// the endpoints rather than leaving them open.
func requireSharedSecret(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if token == "" {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "verification endpoints disabled: no auth token configured"})
				return
			}
			got := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
