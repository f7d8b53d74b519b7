// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command linerctl is the CLI client for a running liner server.
//
// Usage:
//
//	linerctl resolve "Diễm Xưa" --artist "Trịnh Công Sơn"
//	linerctl stream "Diễm Xưa" --artist "Trịnh Công Sơn"
//	linerctl stats
//	linerctl invalidate --title "Diễm Xưa"
//	linerctl health
//
// The server address defaults to http://localhost:8080 and can be
// overridden with --server or the LINER_URL environment variable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const cliVersion = "0.1.0"

// Flag values shared across subcommands.
var (
	serverURL       string
	artistFlag      string
	languageFlag    string
	noLiveFlag      bool
	minConfFlag     string
	invalidateTitle string
	invalidateAll   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "linerctl",
		Short:   "Client for the Aleutian liner song-narrative service",
		Version: cliVersion,
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"liner server base URL (default LINER_URL or http://localhost:8080)")

	resolveCmd := &cobra.Command{
		Use:   "resolve [title]",
		Short: "Resolve a song narrative in one shot",
		Args:  cobra.MinimumNArgs(1),
		Run:   runResolveCommand,
	}
	addQueryFlags(resolveCmd)

	streamCmd := &cobra.Command{
		Use:   "stream [title]",
		Short: "Resolve a song narrative and print progress as it streams",
		Args:  cobra.MinimumNArgs(1),
		Run:   runStreamCommand,
	}
	addQueryFlags(streamCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache, catalog, and budget statistics",
		Run:   runStatsCommand,
	}

	invalidateCmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Evict cached narratives",
		Run:   runInvalidateCommand,
	}
	invalidateCmd.Flags().StringVar(&invalidateTitle, "title", "", "title to evict")
	invalidateCmd.Flags().StringVar(&artistFlag, "artist", "", "artist of the title to evict")
	invalidateCmd.Flags().BoolVar(&invalidateAll, "all", false, "evict every cached entry")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check server liveness",
		Run:   runHealthCommand,
	}

	rootCmd.AddCommand(resolveCmd, streamCmd, statsCmd, invalidateCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&artistFlag, "artist", "", "attributed artist")
	cmd.Flags().StringVar(&languageFlag, "language", "", "preferred provider language (BCP 47)")
	cmd.Flags().BoolVar(&noLiveFlag, "no-live", false, "skip live providers; answer from verified/cache only")
	cmd.Flags().StringVar(&minConfFlag, "min-confidence", "", "lowest cache confidence to accept (verified|high|medium|low)")
}

// getLinerBaseURL resolves the server address: flag, then LINER_URL, then
// the local default.
func getLinerBaseURL() string {
	if serverURL != "" {
		return serverURL
	}
	if env := os.Getenv("LINER_URL"); env != "" {
		return env
	}
	return "http://localhost:8080"
}
