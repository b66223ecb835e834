// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vgebrev/leagr/backend"
)

func main() {
	root := &cobra.Command{
		Use:   "leagr",
		Short: "leagr runs the multi-tenant five-a-side league session engine",
		RunE:  run,
	}
	root.Flags().String("addr", "", "listen address (overrides ADDR)")
	root.Flags().String("data-dir", "", "root directory for league data (overrides DATA_DIR)")
	root.Flags().Bool("dev", false, "enable verbose development logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := backend.LoadConfig(flagsToArgs(cmd))
	if err != nil {
		return err
	}

	log, err := backend.NewLogger(cfg.Dev)
	if err != nil {
		return err
	}
	defer log.Sync()

	srv := backend.NewServer(cfg, log)
	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func flagsToArgs(cmd *cobra.Command) []string {
	var args []string
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		args = append(args, "--addr", v)
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		args = append(args, "--data-dir", v)
	}
	if v, _ := cmd.Flags().GetBool("dev"); v {
		args = append(args, "--dev")
	}
	return args
}
