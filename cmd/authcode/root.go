// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "authcode",
	Short: "OIDC authorization code + PKCE relying party",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var serveCmd = newServeCmd()

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := cmd.Flags().GetString("env-file")
			if err != nil {
				return err
			}
			if file == "" {
				if _, err := os.Stat(".env"); err == nil {
					file = ".env"
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			environ, err := flagEnviron(cmd, env.ToMap(os.Environ()))
			if err != nil {
				return err
			}
			cfg, err := loadConfig(file, environ)
			if err != nil {
				return err
			}
			logger := hclog.New(&hclog.LoggerOptions{
				Name:  "authcode",
				Level: hclog.LevelFromString(cfg.LogLevel),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	flags := cmd.Flags()
	flags.String("env-file", "", "dotenv file to load (default .env when present)")
	flags.IntP("port", "p", defaultPort, "port to listen on, overrides PORT")
	flags.String("log-level", "", "trace, debug, info, warn, error or off, overrides LOG_LEVEL")
	return cmd
}

// flagEnviron returns a copy of environ with the variables of any serve flags
// given on the command line replaced by the flag values, so they get the same
// defaults and validation as the environment.
func flagEnviron(cmd *cobra.Command, environ map[string]string) (map[string]string, error) {
	out := maps.Clone(environ)
	if out == nil {
		out = map[string]string{}
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		p, err := flags.GetInt("port")
		if err != nil {
			return nil, err
		}
		out["PORT"] = strconv.Itoa(p)
	}
	if flags.Changed("log-level") {
		l, err := flags.GetString("log-level")
		if err != nil {
			return nil, err
		}
		out["LOG_LEVEL"] = l
	}
	return out, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "authcode %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *Config, logger hclog.Logger) error {
	s, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "issuer", cfg.Issuer, "redirect_url", cfg.RedirectURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
