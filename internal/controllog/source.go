// SPDX-License-Identifier: MIT

// Package controllog aggregates race-control decisions from the sanctioning
// body's feed and fans them out to subscribed viewers, per car and per
// event. It runs as its own per-event worker so a slow source never stalls
// the timing pipeline.
package controllog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/log"
)

// Entry is one race-control line item.
type Entry struct {
	Timestamp       time.Time `json:"timestamp"`
	CarNumber       string    `json:"carNumber"`
	OtherCarNumber  string    `json:"otherCarNumber,omitempty"`
	Lap             int       `json:"lap"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	PenaltyWarnings int       `json:"penaltyWarnings"`
	PenaltyLaps     int       `json:"penaltyLaps"`
}

// Source fetches the full current control log from the sanctioning body.
type Source interface {
	Fetch(ctx context.Context) ([]Entry, error)
}

// Watcher is an optional Source capability: a channel that fires when the
// underlying data changed, waking the aggregator ahead of its poll tick.
type Watcher interface {
	Changes() <-chan struct{}
	Close() error
}

// NewSource builds the configured source implementation.
func NewSource(cfg config.ControlLog) (Source, error) {
	switch cfg.SourceType {
	case "http":
		return &httpSource{
			url:    cfg.SourceURL,
			client: &http.Client{Timeout: 15 * time.Second},
		}, nil
	case "file":
		return newFileSource(cfg.SourceDir)
	default:
		return nil, fmt.Errorf("unknown control log source type %q", cfg.SourceType)
	}
}

// httpSource polls a JSON endpoint returning the full entry list.
type httpSource struct {
	url    string
	client *http.Client
}

func (s *httpSource) Fetch(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build control log request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch control log: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("control log source returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read control log body: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode control log: %w", err)
	}
	return entries, nil
}

// fileSource reads every .json file in a drop directory; officials export
// from their scoring tool into it. An fsnotify watcher wakes the aggregator
// as soon as a new export lands.
type fileSource struct {
	dir     string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	changes chan struct{}
}

func newFileSource(dir string) (*fileSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create control log watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	s := &fileSource{
		dir:     dir,
		logger:  log.WithComponent("controllog"),
		watcher: watcher,
		changes: make(chan struct{}, 1),
	}
	go s.forwardEvents()
	return s, nil
}

func (s *fileSource) forwardEvents() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			select {
			case s.changes <- struct{}{}:
			default:
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Str("event", "controllog.watch_error").
				Msg("drop directory watch error")
		}
	}
}

func (s *fileSource) Changes() <-chan struct{} { return s.changes }

func (s *fileSource) Close() error { return s.watcher.Close() }

func (s *fileSource) Fetch(_ context.Context) ([]Entry, error) {
	names, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list control log drops: %w", err)
	}
	sort.Strings(names)

	var entries []Entry
	for _, name := range names {
		data, err := os.ReadFile(name) // #nosec G304 -- confined to the configured drop dir
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var chunk []Entry
		if err := json.Unmarshal(data, &chunk); err != nil {
			s.logger.Warn().Err(err).Str("file", name).
				Str("event", "controllog.bad_drop_file").Msg("skipping unparseable drop file")
			continue
		}
		entries = append(entries, chunk...)
	}
	return entries, nil
}
