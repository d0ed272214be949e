/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "refercanvas/internal/log"
	"refercanvas/internal/telemetry"
	"refercanvas/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// saveTimeout bounds the crash-time save.
const saveTimeout = 3 * time.Second

// Saver persists the open board during a crash. It returns the file id of
// the saved document.
type Saver interface {
	CrashSave(ctx context.Context) (string, error)
}

// Target says where crash reports go and what to save. Both fields are
// optional; reports default to the temp dir.
type Target struct {
	ReportDir string
	Saver     Saver
}

// Recover captures a panic, logs an error with stacktrace,
// writes an error report file, and attempts a crash-time save of the open
// board.
//
// Usage: defer crash.Recover(target)
func Recover(t Target) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		var savedID string
		if t.Saver != nil {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			id, err := safeSave(ctx, t.Saver)
			cancel()
			if err != nil {
				l.Error("crash save failed", slog.Any("err", err))
			} else {
				savedID = id
				l.Info("crash save written", slog.String("file_id", id))
			}
		}
		reportPath, _ := writeReport(t.ReportDir, r, stack, savedID)

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		// Exit with a non-zero code to indicate failure in CLI context.
		exitFn(2)
	}
}

// safeSave keeps a panicking saver from masking the original panic.
func safeSave(ctx context.Context, s Saver) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("saver panicked: %v", r)
		}
	}()
	return s.CrashSave(ctx)
}

func writeReport(dir string, panicVal any, stack []byte, savedID string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	_ = os.MkdirAll(dir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Refer Canvas Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if savedID != "" {
		_, _ = fmt.Fprintf(&buf, "SavedDocument: %s\n", savedID)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()

	// no-op unless the user opted in to crash uploads
	telemetry.Default().UploadCrash(buf.Bytes())
	return path, nil
}
