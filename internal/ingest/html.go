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
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// imagePolicy keeps only <img src> from pasted markup, data URIs included.
func imagePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowImages()
	p.AllowDataURIImages()
	p.AllowURLSchemes("http", "https", "file")
	return p
}

// ImageSources returns the <img> sources of an HTML fragment in document
// order, as written in the markup. The policy decides which sources are
// allowed; it never rewrites them.
func ImageSources(p *bluemonday.Policy, fragment string) []string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			for _, a := range n.Attr {
				src := strings.TrimSpace(a.Val)
				if a.Key == "src" && src != "" && allowedImage(p, src) {
					out = append(out, src)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// allowedImage reports whether the policy keeps an <img> with src. The
// check runs on the normalized URL, which has no bare spaces.
func allowedImage(p *bluemonday.Policy, src string) bool {
	clean := p.Sanitize(`<img src="` + html.EscapeString(SourceKey(src)) + `">`)
	return strings.Contains(clean, "src=")
}

// SourceKey normalizes an image source for deduplication: percent-encoding
// differences and surrounding space do not make two sources distinct. Data
// URLs and unparseable sources are only trimmed.
func SourceKey(src string) string {
	src = strings.TrimSpace(src)
	if len(src) >= 5 && strings.EqualFold(src[:5], "data:") {
		return src
	}
	u, err := url.Parse(src)
	if err != nil {
		return src
	}
	return u.String()
}
