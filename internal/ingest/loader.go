/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes caps a single fetched image.
const DefaultMaxBytes = 64 << 20

var (
	ErrUnsupportedScheme = errors.New("unsupported image source")
	ErrTooLarge          = errors.New("image too large")
)

// Resolved is a loaded image: its source and natural size.
type Resolved struct {
	Src    string
	Format string
	Width  int
	Height int
}

// Loader resolves an image source to its natural dimensions.
type Loader interface {
	Load(ctx context.Context, src string) (Resolved, error)
}

// HTTPLoader fetches http(s), data: and file:// sources.
type HTTPLoader struct {
	Client   *http.Client
	MaxBytes int64
}

func (l *HTTPLoader) client() *http.Client {
	if l.Client != nil {
		return l.Client
	}
	return http.DefaultClient
}

// Fetch returns the raw bytes behind src.
func (l *HTTPLoader) Fetch(ctx context.Context, src string) ([]byte, error) {
	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	switch {
	case strings.HasPrefix(src, "data:"):
		data, _, err := DecodeDataURL(src)
		return data, err
	case strings.HasPrefix(src, "file://"):
		u, err := url.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", src, err)
		}
		return os.ReadFile(u.Path)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.client().Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %d", src, resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > limit {
			return nil, ErrTooLarge
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %.40q", ErrUnsupportedScheme, src)
}

func (l *HTTPLoader) Load(ctx context.Context, src string) (Resolved, error) {
	data, err := l.Fetch(ctx, src)
	if err != nil {
		return Resolved{}, err
	}
	w, h, format, err := DecodeSize(data)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Src: src, Format: format, Width: w, Height: h}, nil
}

// DecodeSize reads the natural size of an encoded image.
func DecodeSize(data []byte) (w, h int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return 0, 0, "", fmt.Errorf("decode image: empty %s", format)
	}
	return cfg.Width, cfg.Height, format, nil
}

// DataURL encodes data as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a data URL into its payload and media type.
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	mime, isB64 := strings.CutSuffix(meta, ";base64")
	if isB64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("data URL payload: %w", err)
		}
		return data, mime, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("data URL payload: %w", err)
	}
	return []byte(text), mime, nil
}
