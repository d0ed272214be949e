/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ingest turns dropped or pasted payloads into placed scene objects.
package ingest

import (
	"bufio"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ItemKind tags a transfer item.
type ItemKind int

const (
	PlainText ItemKind = iota + 1
	HTMLFragment
	URIList
	ImageFile
	JSONDocument
)

func (k ItemKind) String() string {
	switch k {
	case PlainText:
		return "text"
	case HTMLFragment:
		return "html"
	case URIList:
		return "uri-list"
	case ImageFile:
		return "image"
	case JSONDocument:
		return "json"
	default:
		return "unknown"
	}
}

// Item is one entry of a drop or paste payload. Text carries string kinds;
// Data carries file bytes.
type Item struct {
	Kind ItemKind
	MIME string
	Name string
	Text string
	Data []byte
}

// Classify maps a MIME type to an item kind. It reports false for types the
// canvas does not accept.
func Classify(mime string) (ItemKind, bool) {
	m := strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	switch {
	case m == "text/plain":
		return PlainText, true
	case m == "text/html":
		return HTMLFragment, true
	case m == "text/uri-list":
		return URIList, true
	case m == "application/json":
		return JSONDocument, true
	case strings.HasPrefix(m, "image/"):
		return ImageFile, true
	}
	return 0, false
}

// NewItem builds an item from a MIME type and payload. Text kinds take the
// payload as their text.
func NewItem(mime, name string, data []byte) (Item, bool) {
	k, ok := Classify(mime)
	if !ok {
		return Item{}, false
	}
	it := Item{Kind: k, MIME: mime, Name: name}
	if k == ImageFile {
		it.Data = data
	} else {
		it.Text = string(data)
	}
	return it, true
}

// ParseURIList returns the URLs of a text/uri-list payload, skipping blank
// lines and # comments.
func ParseURIList(s string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// FindDocument returns the first JSON document item, if any.
func FindDocument(items []Item) (string, bool) {
	for _, it := range items {
		if it.Kind == JSONDocument {
			return it.Text, true
		}
	}
	return "", false
}

// ReadFile loads a file from disk as a transfer item. The MIME type comes
// from the extension, falling back to content sniffing.
func ReadFile(path string) (Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Item{}, fmt.Errorf("read %s: %w", path, err)
	}
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	it, ok := NewItem(mt, filepath.Base(path), data)
	if !ok {
		return Item{}, fmt.Errorf("unsupported file type %q: %s", mt, path)
	}
	return it, nil
}

// IsImagePath reports whether path has an extension of a decodable image.
func IsImagePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}
