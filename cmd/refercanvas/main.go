/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"refercanvas/internal/clipboard"
	"refercanvas/internal/config"
	"refercanvas/internal/controller"
	"refercanvas/internal/crash"
	"refercanvas/internal/events"
	applog "refercanvas/internal/log"
	"refercanvas/internal/storage"
	"refercanvas/internal/telemetry"
	"refercanvas/internal/ui"
	"refercanvas/internal/version"
)

func usage() {
	fmt.Println("Refer Canvas: reference board")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  refercanvas version|-v|--version          Show version")
	fmt.Println("  refercanvas new [<title>]                  Create an empty board")
	fmt.Println("  refercanvas list [<query>]                 List boards, or search their titles and text")
	fmt.Println("  refercanvas show <id>                      Print a board summary and its revisions")
	fmt.Println("  refercanvas rename <id> <title>            Rename a board")
	fmt.Println("  refercanvas delete <id>                    Delete a board and its revisions")
	fmt.Println("  refercanvas import <file>                  Store a board file as a new board")
	fmt.Println("  refercanvas export <id|latest> <file>      Export as .refer.json, .png, .pdf, .svg or .zip")
	fmt.Println("  refercanvas ingest <id|latest> <files...>  Add images or text files to a board")
	fmt.Println("  refercanvas restore <id> <revision>        Make a revision the current content of a board")
	fmt.Println("  refercanvas prune                          Drop revisions beyond the configured limit")
	fmt.Println("  refercanvas check                          Verify the database and print its schema version")
	fmt.Println("  refercanvas watch [<dir>]                  Add files dropped into the inbox to the latest board")
	fmt.Println("  refercanvas ui                             Launch desktop UI (build with -tags fyne for full UI)")
}

func fail(l *slog.Logger, msg string, err error) {
	l.Error(msg, slog.Any("err", err))
	fmt.Println("Error:", err)
	os.Exit(1)
}

func need(args []string, n int, what string) {
	if len(args) < n {
		fmt.Println(what)
		usage()
		os.Exit(2)
	}
}

func main() {
	cfg, token, err := config.Load()
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")
	if err != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", err))
	}
	defer crash.Recover(crash.Target{})

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("Refer Canvas")
		fmt.Println(version.String())
		return
	case "help", "-h", "--help":
		usage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		fail(l, "resolve database path", err)
	}
	st, err := storage.Open(ctx, dbPath)
	if err != nil {
		fail(l, "open store", err)
	}
	defer func() { _ = st.Close() }()

	bus := events.NewBus()
	tc := telemetry.New(telemetry.FromEnv().WithUser(cfg.General.TelemetryOptIn, token))
	telemetry.SetDefault(tc)
	defer tc.Close()
	defer tc.Attach(bus)()

	var sys clipboard.System = &clipboard.Memory{}
	if args[1] == "ui" && clipboard.Available() {
		sys = clipboard.OS{}
	}
	ctl, err := controller.New(controller.Deps{
		Bus:    bus,
		Store:  st,
		System: sys,
		Config: cfg,
		Logger: applog.WithComponent("controller"),
	})
	if err != nil {
		fail(l, "start controller", err)
	}
	defer ctl.Close()
	// Runs before the store is closed, so the open board can still be saved.
	defer crash.Recover(crash.Target{Saver: ctl})

	if err := run(ctx, l, cfg, st, ctl, args[1], args[2:]); err != nil {
		fail(l, args[1]+" failed", err)
	}
}

func openBoard(ctx context.Context, ctl *controller.Controller, id string) error {
	if id == "latest" {
		return ctl.LoadLatest(ctx)
	}
	return ctl.LoadFile(ctx, id)
}

func run(ctx context.Context, l *slog.Logger, cfg config.AppConfig, st *storage.Store, ctl *controller.Controller, cmd string, args []string) error {
	switch cmd {
	case "new":
		if err := ctl.NewCanvas(ctx); err != nil {
			return err
		}
		id, err := ctl.Save(ctx, true)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			if err := ctl.Rename(ctx, strings.Join(args, " ")); err != nil {
				return err
			}
		}
		_, title := ctl.Document()
		fmt.Printf("Created board %s (%s)\n", id, title)
	case "list":
		if len(args) > 0 {
			res, err := st.Search(ctx, storage.SearchQuery{Text: strings.Join(args, " "), Limit: 50})
			if err != nil {
				return err
			}
			for _, r := range res {
				fmt.Printf("%s  %-32s  %s\n", r.FileID, r.Title, r.Snippet)
			}
			return nil
		}
		docs, err := ctl.Documents(ctx)
		if err != nil {
			return err
		}
		for _, d := range docs {
			fmt.Printf("%s  %-32s  %s\n", d.FileID, d.Title, d.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
	case "show":
		need(args, 1, "show requires <id>")
		doc, err := st.Get(ctx, args[0])
		if err != nil {
			return err
		}
		revs, err := st.ListRevisions(ctx, doc.FileID)
		if err != nil {
			return err
		}
		if err := ctl.LoadFile(ctx, doc.FileID); err != nil {
			return err
		}
		fmt.Println("Title:", doc.Title)
		fmt.Println("Id:", doc.FileID)
		fmt.Println("Objects:", ctl.Canvas().Len())
		fmt.Println("Created:", doc.CreatedAt.Local().Format(time.RFC3339))
		fmt.Println("Updated:", doc.UpdatedAt.Local().Format(time.RFC3339))
		fmt.Println("Revisions:", len(revs))
		for _, r := range revs {
			fmt.Printf("  #%d  %s\n", r.ID, r.TS.Local().Format(time.RFC3339))
		}
	case "rename":
		need(args, 2, "rename requires <id> and <title>")
		if err := ctl.LoadFile(ctx, args[0]); err != nil {
			return err
		}
		return ctl.Rename(ctx, strings.Join(args[1:], " "))
	case "delete":
		need(args, 1, "delete requires <id>")
		if err := ctl.LoadFile(ctx, args[0]); err != nil {
			return err
		}
		if err := ctl.Delete(ctx); err != nil {
			return err
		}
		fmt.Println("Deleted", args[0])
	case "import":
		need(args, 1, "import requires <file>")
		ok, err := ctl.ImportFile(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s is not a valid board file", args[0])
		}
		id, err := ctl.Save(ctx, true)
		if err != nil {
			return err
		}
		fmt.Println("Imported as", id)
	case "export":
		need(args, 2, "export requires <id|latest> and <file>")
		if err := openBoard(ctx, ctl, args[0]); err != nil {
			return err
		}
		if err := ctl.Export(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("Wrote", args[1])
	case "ingest":
		need(args, 2, "ingest requires <id|latest> and at least one file")
		if err := openBoard(ctx, ctl, args[0]); err != nil {
			return err
		}
		n, err := ctl.AddFiles(ctx, args[1:])
		if err != nil {
			return err
		}
		id, err := ctl.Save(ctx, false)
		if err != nil {
			return err
		}
		fmt.Printf("Added %d objects to %s\n", n, id)
	case "restore":
		need(args, 2, "restore requires <id> and <revision>")
		revID, err := strconv.ParseInt(strings.TrimPrefix(args[1], "#"), 10, 64)
		if err != nil {
			return fmt.Errorf("bad revision %q: %w", args[1], err)
		}
		rev, err := st.GetRevision(ctx, revID)
		if err != nil {
			return err
		}
		if rev.FileID != args[0] {
			return fmt.Errorf("revision #%d belongs to %s", rev.ID, rev.FileID)
		}
		changed, err := st.Update(ctx, rev.FileID, rev.Content)
		if err != nil {
			return err
		}
		if !changed {
			fmt.Println("Board already matches revision", rev.ID)
			return nil
		}
		fmt.Printf("Restored %s to revision #%d\n", rev.FileID, rev.ID)
	case "check":
		if err := st.QuickCheck(ctx); err != nil {
			return err
		}
		v, err := st.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		n, err := st.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s: ok, schema v%d, %d boards\n", st.Path(), v, n)
	case "prune":
		n, err := ctl.PruneRevisions(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d revisions\n", n)
	case "watch":
		if err := ctl.LoadLatest(ctx); err != nil {
			return err
		}
		dir, err := inbox(cfg, args)
		if err != nil {
			return err
		}
		stopPrune, err := ctl.StartPruning(ctx)
		if err != nil {
			return err
		}
		defer stopPrune()
		fmt.Println("Watching", dir, "(Ctrl+C to stop)")
		err = ctl.WatchInbox(ctx, dir)
		if _, serr := ctl.Save(context.Background(), false); serr != nil {
			l.Error("final save", slog.Any("err", serr))
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case "ui":
		stopPrune, err := ctl.StartPruning(ctx)
		if err != nil {
			return err
		}
		defer stopPrune()
		if dir, err := inbox(cfg, nil); err == nil {
			go func() {
				if err := ctl.WatchInbox(ctx, dir); err != nil && !errors.Is(err, context.Canceled) {
					l.Warn("inbox watcher stopped", slog.Any("err", err))
				}
			}()
		}
		return ui.Run(ctx, ctl)
	default:
		usage()
		os.Exit(2)
	}
	return nil
}

func inbox(cfg config.AppConfig, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return controller.InboxDir(cfg)
}
