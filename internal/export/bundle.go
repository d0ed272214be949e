/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"strings"

	"refercanvas/internal/ingest"
	"refercanvas/internal/scene"
)

// Bundle entry names.
const (
	BundleDocument = "board.refer.json"
	BundlePreview  = "preview.png"
	BundleAssets   = "assets/"
)

// Bundle writes a ZIP archive holding the serialized board, a PNG preview
// and every embedded image extracted to assets/. An empty board produces an
// archive without a preview.
func Bundle(ctx context.Context, w io.Writer, content string, objs []*scene.Object, opt Options) error {
	zw := zip.NewWriter(w)

	var doc bytes.Buffer
	if err := json.Indent(&doc, []byte(content), "", "    "); err != nil {
		return fmt.Errorf("format document: %w", err)
	}
	if err := addZipFile(zw, BundleDocument, doc.Bytes()); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	if len(objs) > 0 {
		var prev bytes.Buffer
		if err := PNG(ctx, &prev, objs, opt); err != nil {
			return fmt.Errorf("render preview: %w", err)
		}
		if err := addZipFile(zw, BundlePreview, prev.Bytes()); err != nil {
			return fmt.Errorf("add preview: %w", err)
		}
	}

	n := 0
	for _, o := range objs {
		if o.Kind != scene.KindImage || !strings.HasPrefix(o.Src, "data:") {
			continue
		}
		data, mt, err := ingest.DecodeDataURL(o.Src)
		if err != nil {
			continue
		}
		n++
		name := fmt.Sprintf("%s%03d%s", BundleAssets, n, extFor(mt))
		if err := addZipFile(zw, name, data); err != nil {
			return fmt.Errorf("add asset: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close bundle: %w", err)
	}
	return nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func extFor(mt string) string {
	switch mt {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
