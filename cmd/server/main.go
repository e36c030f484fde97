// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/validation"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "warden",
		Short: "Fault-contained HTTP front server",
		Long: `Warden serves static pages and an optional proxied collaborator,
records every process fault to a crash log, and shuts down on a fixed deadline.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE:  runServe,
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then exit",
		RunE:  runValidate,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (overrides CONFIG_PATH)")
	rootCmd.AddCommand(serveCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		var verr *validation.StructError
		if errors.As(err, &verr) {
			for i, fe := range verr.Errors() {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %d. %s (%s): %s\n", i+1, fe.Field(), fe.Tag(), fe.Error())
			}
		}
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "configuration OK (listen %s, environment %s)\n", cfg.Addr(), cfg.Server.Environment)
	return nil
}
