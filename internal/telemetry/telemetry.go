/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in, anonymous board usage to a collector and
// uploads crash reports. Nothing is sent unless the user opted in and an
// endpoint is configured.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"refercanvas/internal/events"
	applog "refercanvas/internal/log"
	"refercanvas/internal/scene"
	"refercanvas/internal/version"
)

// Config controls where reports go.
//
// Environment variables (read by FromEnv):
//   - REFER_TELEMETRY_OPT_IN: "1", "true", "yes" or "on" to enable usage reports
//   - REFER_TELEMETRY_URL: collector endpoint for usage reports
//   - REFER_CRASH_UPLOAD_URL: endpoint for crash reports
//   - REFER_TELEMETRY_TIMEOUT_MS: request timeout, default 1500
//   - REFER_TELEMETRY_DEBUG: log send attempts when set
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Token        string // bearer token, from the OS keyring
	Timeout      time.Duration
	DebugLogging bool
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("REFER_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("REFER_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("REFER_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("REFER_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("REFER_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil && v > 0 {
			cfg.Timeout = v
		}
	}
	return cfg
}

// WithUser layers the user's settings over cfg: the config file opt-in and
// the keyring token.
func (c Config) WithUser(optIn bool, token string) Config {
	c.OptIn = c.OptIn || optIn
	if token != "" {
		c.Token = token
	}
	return c
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Report is the JSON body posted for every usage event.
type Report struct {
	Name    string         `json:"name"`
	TS      string         `json:"ts"`
	Version string         `json:"version"`
	OS      string         `json:"os"`
	Arch    string         `json:"arch"`
	Props   map[string]any `json:"props,omitempty"`
}

// Session tallies board activity between Attach and Close.
type Session struct {
	Added   map[scene.Kind]int64 `json:"added"`
	Undos   int64                `json:"undos"`
	Redos   int64                `json:"redos"`
	Saves   int64                `json:"saves"`
	Failed  int64                `json:"autosave_failures"`
	Elapsed time.Duration        `json:"-"`
}

// Client queues reports and posts them from a single goroutine. A full
// queue drops reports; callers never block.
type Client struct {
	cfg    Config
	log    *slog.Logger
	cli    *http.Client
	q      chan Report
	once   sync.Once
	closed chan struct{}
	done   chan struct{}

	started time.Time
	mu      sync.Mutex
	added   map[scene.Kind]int64
	undos   atomic.Int64
	redos   atomic.Int64
	saves   atomic.Int64
	failed  atomic.Int64
}

func New(cfg Config) *Client {
	c := &Client{
		cfg:     cfg,
		log:     applog.WithComponent("telemetry"),
		cli:     &http.Client{Timeout: cfg.Timeout},
		q:       make(chan Report, 64),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
		started: time.Now(),
		added:   map[scene.Kind]int64{},
	}
	go c.loop()
	return c
}

var (
	defaultMu     sync.RWMutex
	defaultClient *Client
)

// SetDefault installs c as the client used by crash uploads.
func SetDefault(c *Client) {
	defaultMu.Lock()
	defaultClient = c
	defaultMu.Unlock()
}

// Default returns the installed client, or nil. A nil client drops everything.
func Default() *Client {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClient
}

// Enabled reports whether usage reports are sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues a usage report. props must not carry document content,
// titles or ids.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	r := Report{
		Name:    name,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Version: version.String(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		Props:   props,
	}
	select {
	case c.q <- r:
	default:
	}
}

// Attach tallies board activity from bus into the session and reports
// saves and exhausted autosave retries as they happen. The returned func
// detaches.
func (c *Client) Attach(bus *events.Bus) func() {
	if c == nil || bus == nil {
		return func() {}
	}
	return bus.SubscribeKind(func(e events.Event) {
		switch ev := e.(type) {
		case events.ObjectAdded:
			if ev.Target != nil {
				c.mu.Lock()
				c.added[ev.Target.Kind]++
				c.mu.Unlock()
			}
		case events.HistoryUndo:
			c.undos.Add(1)
		case events.HistoryRedo:
			c.redos.Add(1)
		case events.DocumentSaved:
			c.saves.Add(1)
			c.Event("document_saved", nil)
		case events.AutosaveStatus:
			if ev.Err != nil && !ev.IsSaving {
				c.failed.Add(1)
				c.Event("autosave_failed", map[string]any{"attempts": ev.ErrorCount})
			}
		}
	}, events.KindObjectAdded, events.KindHistoryUndo, events.KindHistoryRedo,
		events.KindDocumentSaved, events.KindAutosaveStatus)
}

// Session returns a copy of the tallies so far.
func (c *Client) Session() Session {
	c.mu.Lock()
	added := make(map[scene.Kind]int64, len(c.added))
	for k, v := range c.added {
		added[k] = v
	}
	c.mu.Unlock()
	return Session{
		Added:   added,
		Undos:   c.undos.Load(),
		Redos:   c.redos.Load(),
		Saves:   c.saves.Load(),
		Failed:  c.failed.Load(),
		Elapsed: time.Since(c.started),
	}
}

// Flush waits up to half a second for queued reports to go out.
func (c *Client) Flush(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for len(c.q) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Close queues the session summary, drains the queue briefly and stops the
// sender.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.Enabled() {
			s := c.Session()
			c.Event("session_summary", map[string]any{
				"added":             s.Added,
				"undos":             s.Undos,
				"redos":             s.Redos,
				"saves":             s.Saves,
				"autosave_failures": s.Failed,
				"seconds":           int64(s.Elapsed.Seconds()),
			})
			c.Flush(context.Background())
		}
		close(c.closed)
		<-c.done
	})
}

func (c *Client) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.closed:
			return
		case r := <-c.q:
			c.send(r)
		}
	}
}

func (c *Client) post(ctx context.Context, url, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	resp, err := c.cli.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *Client) send(r Report) {
	buf, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.post(context.Background(), c.cfg.EventsURL, "application/json", buf); err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.String("event", r.Name), slog.Any("err", err))
		}
		return
	}
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry event sent", slog.String("event", r.Name))
	}
}

// UploadCrash posts a crash report in the background when the user opted in
// and a crash endpoint is configured.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	go func(b []byte) {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
		defer cancel()
		if err := c.post(ctx, c.cfg.CrashURL, "text/plain; charset=utf-8", b); err != nil {
			if c.cfg.DebugLogging {
				c.log.Debug("crash upload failed", slog.Any("err", err))
			}
			return
		}
		if c.cfg.DebugLogging {
			c.log.Debug("crash report uploaded")
		}
	}(append([]byte(nil), report...))
}
