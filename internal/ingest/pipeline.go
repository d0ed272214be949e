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
	"context"
	"log/slog"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"

	"refercanvas/internal/scene"
)

// View supplies the current zoom and viewport center.
type View interface {
	Zoom() float64
	VpCenter() scene.Pt
}

// Anchor is where ingested content is placed. A zero Anchor means the
// viewport center.
type Anchor struct {
	Point   scene.Pt
	Pointer bool
}

// AtPointer anchors at a scene point, as for a drop.
func AtPointer(p scene.Pt) Anchor { return Anchor{Point: p, Pointer: true} }

type Config struct {
	// DisplayHeight is the on-screen height of a new image.
	DisplayHeight float64
	// Spacing staggers successive images, in screen units.
	Spacing float64
	// Gap separates objects in the final row, in scene units.
	Gap float64
	// TextSize is the on-screen font size of dropped text.
	TextSize float64
	// LoadTimeout bounds each image load; zero means no limit.
	LoadTimeout time.Duration
	// Workers limits concurrent loads; zero means unlimited.
	Workers int
}

func DefaultConfig() Config {
	return Config{DisplayHeight: 300, Spacing: 20, Gap: 20, TextSize: 50, LoadTimeout: 15 * time.Second, Workers: 8}
}

// Pipeline resolves transfer items concurrently and lays the results out.
type Pipeline struct {
	view   View
	style  scene.StylePreset
	loader Loader
	cfg    Config
	log    *slog.Logger
	policy *bluemonday.Policy
}

func New(view View, style scene.StylePreset, loader Loader, cfg Config, log *slog.Logger) *Pipeline {
	if loader == nil {
		loader = &HTTPLoader{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{view: view, style: style, loader: loader, cfg: cfg, log: log, policy: imagePolicy()}
}

// Config returns the pipeline settings.
func (p *Pipeline) Config() Config { return p.cfg }

// task is one slot of the fan-out. Exactly one of obj, src or data is set.
type task struct {
	obj  *scene.Object
	src  string
	data []byte
	mime string
	seq  int
}

// AddFromDataTransfer resolves items into objects placed around the anchor.
// Loads run concurrently; failed loads are dropped. The result keeps the
// scan order of the items. The objects are not added to any canvas.
func (p *Pipeline) AddFromDataTransfer(ctx context.Context, items []Item, a Anchor) ([]*scene.Object, error) {
	zoom := p.view.Zoom()
	anchor := a.Point
	if !a.Pointer {
		anchor = p.view.VpCenter()
	}
	tasks := p.plan(items, anchor, zoom)
	if len(tasks) == 0 {
		return nil, nil
	}

	results := make([]*scene.Object, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	if p.cfg.Workers > 0 {
		g.SetLimit(p.cfg.Workers)
	}
	for i, t := range tasks {
		if t.obj != nil {
			results[i] = t.obj
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.resolve(gctx, t, anchor, zoom)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := results[:0]
	for _, o := range results {
		if o != nil {
			out = append(out, o)
		}
	}
	Layout(out, anchor.X, p.cfg.Gap)
	p.log.Debug("ingested", "items", len(items), "objects", len(out))
	return out, nil
}

// plan scans the items in order, claiming each image source once and
// numbering images by scan position.
func (p *Pipeline) plan(items []Item, anchor scene.Pt, zoom float64) []task {
	hasHTML := false
	for _, it := range items {
		if it.Kind == HTMLFragment {
			hasHTML = true
			break
		}
	}
	claimed := map[string]bool{}
	seq := 0
	var tasks []task
	claim := func(src string) {
		key := SourceKey(src)
		if claimed[key] {
			return
		}
		claimed[key] = true
		tasks = append(tasks, task{src: src, seq: seq})
		seq++
	}
	for _, it := range items {
		switch it.Kind {
		case PlainText:
			if it.Text == "" {
				continue
			}
			tasks = append(tasks, task{obj: p.text(it.Text, anchor, zoom)})
		case HTMLFragment:
			for _, src := range ImageSources(p.policy, it.Text) {
				claim(src)
			}
		case URIList:
			for _, src := range ParseURIList(it.Text) {
				claim(src)
			}
		case ImageFile:
			if hasHTML || len(it.Data) == 0 {
				continue
			}
			tasks = append(tasks, task{data: it.Data, mime: it.MIME, seq: seq})
			seq++
		}
	}
	return tasks
}

func (p *Pipeline) text(s string, anchor scene.Pt, zoom float64) *scene.Object {
	o := p.style.NewText(s, p.cfg.TextSize/zoom)
	o.SetCenter(anchor)
	return o
}

func (p *Pipeline) resolve(ctx context.Context, t task, anchor scene.Pt, zoom float64) *scene.Object {
	if p.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.LoadTimeout)
		defer cancel()
	}
	var r Resolved
	if t.data != nil {
		w, h, format, err := DecodeSize(t.data)
		if err != nil {
			p.log.Debug("skip image file", "err", err)
			return nil
		}
		mime := t.mime
		if mime == "" {
			mime = "image/" + format
		}
		r = Resolved{Src: DataURL(mime, t.data), Format: format, Width: w, Height: h}
	} else {
		var err error
		r, err = p.loader.Load(ctx, t.src)
		if err != nil {
			p.log.Debug("skip image", "src", truncate(t.src, 80), "err", err)
			return nil
		}
	}
	return p.place(r, anchor, zoom, t.seq)
}

// place scales the image to the display height and centers it on the
// anchor shifted by its sequence number.
func (p *Pipeline) place(r Resolved, anchor scene.Pt, zoom float64, seq int) *scene.Object {
	o := p.style.NewImage(r.Src, float64(r.Width), float64(r.Height))
	scale := p.cfg.DisplayHeight / float64(r.Height) / zoom
	o.ScaleX, o.ScaleY = scale, scale
	d := float64(seq) * p.cfg.Spacing / zoom
	o.SetCenter(scene.Pt{X: anchor.X + d, Y: anchor.Y + d})
	return o
}

// Layout lines objects up left to right, centered horizontally on x, with gap
// between neighbours.
func Layout(objs []*scene.Object, x, gap float64) {
	if len(objs) == 0 {
		return
	}
	total := 0.0
	for i, o := range objs {
		total += o.ScaledWidth()
		if i > 0 {
			total += gap
		}
	}
	objs[0].Left = x - total/2
	for i := 1; i < len(objs); i++ {
		prev := objs[i-1]
		objs[i].Left = prev.Left + prev.ScaledWidth() + gap
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
