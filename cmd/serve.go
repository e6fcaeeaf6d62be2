package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/newswatch/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cron trigger server",
	Long:  "Exposes HTTP endpoints for the scheduler. Each trigger responds immediately and runs its pipeline in the background.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{http.MethodGet},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			if err := env.Store.Ping(req.Context()); err != nil {
				zap.L().Error("health: store ping failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// Cron triggers are fire-and-forget: the scheduler only needs to know
		// the trigger landed, results go to chat. Runs use the server context
		// so shutdown cancels them.
		r.Get("/cron/tracking/news", func(w http.ResponseWriter, req *http.Request) {
			go func() {
				if _, err := env.News.Run(ctx, model.CategoryDefense, model.CategoryBusiness, model.CategoryWorld); err != nil {
					zap.L().Error("cron: news run failed", zap.Error(err))
				}
			}()
			writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		})

		r.Get("/cron/tracking/blogs", func(w http.ResponseWriter, req *http.Request) {
			go func() {
				if _, err := env.News.Run(ctx, model.CategoryBlogs); err != nil {
					zap.L().Error("cron: blogs run failed", zap.Error(err))
				}
			}()
			writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		})

		r.Get("/cron/tracking/grants", func(w http.ResponseWriter, req *http.Request) {
			go func() {
				if _, err := env.Grants.Run(ctx); err != nil {
					zap.L().Error("cron: grants run failed", zap.Error(err))
				}
			}()
			writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		})

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

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
