/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed refer.schema.json
var documentSchema []byte

// ErrInvalidDocument wraps schema violations of an imported board file.
var ErrInvalidDocument = errors.New("invalid board document")

// FileExt is the extension of exported board files.
const FileExt = ".refer.json"

// ValidateDocument checks serialized board content against the embedded
// JSON schema.
func ValidateDocument(data []byte) error {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(documentSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
	}
	return nil
}

// ExportFile writes content to path as JSON indented with four spaces.
// The file is replaced atomically.
func ExportFile(path, content string) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(content), "", "    "); err != nil {
		return fmt.Errorf("format document: %w", err)
	}
	buf.WriteByte('\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure export dir: %w", err)
	}
	temp := path + ".tmp"
	if err := writeFileSync(temp, buf.Bytes()); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace file: %w", err)
	}
	_ = syncDir(filepath.Dir(path))
	return nil
}

// ImportFile reads a board file, validates it and returns the content in
// compact form.
func ImportFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read board file: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument validates raw board JSON and returns it compacted.
func ParseDocument(data []byte) (string, error) {
	if !json.Valid(data) {
		return "", fmt.Errorf("%w: not JSON", ErrInvalidDocument)
	}
	if err := ValidateDocument(data); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return buf.String(), nil
}

// writeFileSync writes data and fsyncs the file before closing it.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func syncDir(dir string) error {
	df, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = df.Close() }()
	return df.Sync()
}
