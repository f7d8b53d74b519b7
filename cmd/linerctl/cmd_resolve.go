// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/liner/services/liner/datatypes"
	"github.com/AleutianAI/liner/services/liner/stream"
	"github.com/spf13/cobra"
)

// statsResponse mirrors the server's StatsResponse.
type statsResponse struct {
	Cache struct {
		Entries    int   `json:"entries"`
		MaxEntries int   `json:"max_entries"`
		Hits       int64 `json:"hits"`
		Misses     int64 `json:"misses"`
		Evictions  int64 `json:"evictions"`
	} `json:"cache"`
	CatalogEntries int      `json:"catalog_entries"`
	Providers      []string `json:"providers"`
	BudgetRequests int      `json:"budget_requests_remaining"`
	BudgetCost     float64  `json:"budget_cost_remaining"`
}

// invalidateResponse mirrors the server's InvalidateResponse.
type invalidateResponse struct {
	Invalidated int `json:"invalidated"`
}

func buildResolveRequest(args []string) datatypes.ResolveRequest {
	return datatypes.ResolveRequest{
		Title:         strings.Join(args, " "),
		Artist:        artistFlag,
		Language:      languageFlag,
		MinConfidence: datatypes.Confidence(minConfFlag),
		NoLive:        noLiveFlag,
	}
}

func runResolveCommand(_ *cobra.Command, args []string) {
	req := buildResolveRequest(args)
	fmt.Printf("Resolving: %s\n", req.Title)
	fmt.Println("---")

	payload, err := json.Marshal(req)
	if err != nil {
		log.Fatalf("failed to create request body: %v", err)
	}

	done := make(chan bool)
	go showSpinner("Resolving", done)

	resolveURL := fmt.Sprintf("%s/v1/liner/resolve", getLinerBaseURL())
	client := &http.Client{Timeout: 3 * time.Minute}
	resp, err := client.Post(resolveURL, "application/json", bytes.NewBuffer(payload))
	done <- true
	fmt.Print("\r                                                \r")

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: liner server unavailable at %s\n", getLinerBaseURL())
		fmt.Fprintf(os.Stderr, "Start it with: ./liner -config config.yaml\n")
		log.Fatalf("connection failed: %v", err)
	}
	defer closeBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("liner error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var result datatypes.ResolveResponse
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("failed to decode resolve response: %v", err)
	}

	printResolvedContent(result.Content)
	fmt.Printf("\n[request: %s]\n", result.RequestID)
}

func runStreamCommand(_ *cobra.Command, args []string) {
	req := buildResolveRequest(args)

	query := url.Values{}
	query.Set("title", req.Title)
	if req.Artist != "" {
		query.Set("artist", req.Artist)
	}
	if req.Language != "" {
		query.Set("language", req.Language)
	}
	if req.MinConfidence != "" {
		query.Set("min_confidence", string(req.MinConfidence))
	}
	if req.NoLive {
		query.Set("no_live", "true")
	}
	streamURL := fmt.Sprintf("%s/v1/liner/resolve/stream?%s", getLinerBaseURL(), query.Encode())

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Get(streamURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: liner server unavailable at %s\n", getLinerBaseURL())
		log.Fatalf("connection failed: %v", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("liner error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	if err := printEventStream(resp.Body, os.Stdout); err != nil {
		log.Fatalf("stream error: %v", err)
	}
}

// printEventStream reads SSE frames from r and renders them incrementally:
// phase transitions and sources on their own lines, narrative chunks
// appended in place, then the final summary.
func printEventStream(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		chunked  bool
		complete bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev stream.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("malformed event: %w", err)
		}

		switch ev.Type {
		case stream.TypePhase:
			fmt.Fprintf(w, "· %s\n", ev.Phase)
		case stream.TypeBasic:
			if ev.Basic.Artist != "" {
				fmt.Fprintf(w, "%s — %s\n", ev.Basic.Title, ev.Basic.Artist)
			} else {
				fmt.Fprintf(w, "%s\n", ev.Basic.Title)
			}
		case stream.TypeSource:
			fmt.Fprintf(w, "  source: %s (%s)\n", ev.Source.Provider, ev.Source.Outcome)
		case stream.TypeChunk:
			fmt.Fprint(w, ev.Chunk)
			chunked = true
		case stream.TypeContent:
			if chunked {
				fmt.Fprintln(w)
			} else {
				fmt.Fprintf(w, "\n%s\n", ev.Content.Narrative)
			}
			printSources(w, ev.Content.Sources)
		case stream.TypeComplete:
			fmt.Fprintf(w, "\n[%d sources, %d ms]\n", ev.Complete.SourceCount, ev.Complete.DurationMs)
			complete = true
		case stream.TypeError:
			return fmt.Errorf("server reported: %s", ev.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !complete {
		return fmt.Errorf("stream ended before completion")
	}
	return nil
}

func printResolvedContent(content datatypes.ResolvedContent) {
	fmt.Printf("\n%s\n", content.Narrative)
	printSources(os.Stdout, content.Sources)
	fmt.Printf("\n[tier: %s, confidence: %s]\n", content.TierOrigin, content.Confidence)
	if content.Warning != "" {
		fmt.Printf("Warning: %s\n", content.Warning)
	}
}

func printSources(w io.Writer, sources []datatypes.SourceInfo) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources Used:")
	for i, src := range sources {
		scoreInfo := ""
		if src.Score != 0 {
			scoreInfo = fmt.Sprintf(" (Score: %.2f)", src.Score)
		}
		fmt.Fprintf(w, "%d. %s [%s]%s\n", i+1, src.Provider, src.Tier, scoreInfo)
	}
}

func runStatsCommand(_ *cobra.Command, _ []string) {
	statsURL := fmt.Sprintf("%s/v1/liner/cache/stats", getLinerBaseURL())
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(statsURL)
	if err != nil {
		log.Fatalf("connection failed: %v", err)
	}
	defer closeBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("liner error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var stats statsResponse
	if err := json.Unmarshal(body, &stats); err != nil {
		log.Fatalf("failed to decode stats: %v", err)
	}

	fmt.Printf("Cache:    %d/%d entries, %d hits, %d misses, %d evictions\n",
		stats.Cache.Entries, stats.Cache.MaxEntries, stats.Cache.Hits, stats.Cache.Misses, stats.Cache.Evictions)
	fmt.Printf("Catalog:  %d verified entries\n", stats.CatalogEntries)
	fmt.Printf("Sources:  %s\n", strings.Join(stats.Providers, ", "))
	fmt.Printf("Budget:   %d requests / %.1f cost remaining\n", stats.BudgetRequests, stats.BudgetCost)
}

func runInvalidateCommand(_ *cobra.Command, _ []string) {
	if !invalidateAll && invalidateTitle == "" {
		log.Fatalf("Usage: linerctl invalidate --title <title> [--artist <artist>]\n       linerctl invalidate --all")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"title":  invalidateTitle,
		"artist": artistFlag,
		"all":    invalidateAll,
	})
	if err != nil {
		log.Fatalf("failed to create request body: %v", err)
	}

	invalidateURL := fmt.Sprintf("%s/v1/liner/cache/invalidate", getLinerBaseURL())
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(invalidateURL, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Fatalf("connection failed: %v", err)
	}
	defer closeBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("liner error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var result invalidateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("failed to decode response: %v", err)
	}
	fmt.Printf("Invalidated %d entries\n", result.Invalidated)
}

func runHealthCommand(_ *cobra.Command, _ []string) {
	healthURL := fmt.Sprintf("%s/v1/liner/health", getLinerBaseURL())
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(healthURL)
	if err != nil {
		log.Fatalf("liner server unreachable at %s: %v", getLinerBaseURL(), err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("unhealthy (HTTP %d)", resp.StatusCode)
	}
	fmt.Println("ok")
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Error("failed to close response body", "error", err)
	}
}

// showSpinner displays a small animation until done receives a value.
func showSpinner(msg string, done chan bool) {
	chars := []string{"▖", "▘", "▝", "▗"}
	i := 0

	fmt.Print("\033[?25l")
	defer fmt.Print("\033[?25h")

	for {
		select {
		case <-done:
			return
		default:
			fmt.Printf("\r%s  %s... \033[K", chars[i%len(chars)], msg)
			i++
			time.Sleep(100 * time.Millisecond)
		}
	}
}
