package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"accord/internal/notify"
	"accord/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin, legacyHeader, noNotify bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the notification dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := strings.TrimSpace(viper.GetString("jwt-secret"))
			if secret == "" {
				return errors.New("ACCORD_JWT_SECRET is required")
			}
			e, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()
			if addr == "" {
				addr = e.Config.Server.Addr
			}
			if basePath == "" {
				basePath = e.Config.Server.BasePath
			}

			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Logger:   logger,
				Auth: server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: legacyHeader,
					DevLogin:               devLogin,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("listening", zap.String("addr", addr), zap.String("base_path", basePath))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if !noNotify {
				d := notify.New(e.Repo, e.Config.Notifications, logger)
				g.Go(func() error {
					d.Start(ctx)
					<-ctx.Done()
					d.Stop()
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from accord.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from accord.yml)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login (development only)")
	cmd.Flags().BoolVar(&legacyHeader, "allow-legacy-actor-header", false, "accept X-Actor-Id without a token")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "do not run the notification dispatcher")
	return cmd
}
