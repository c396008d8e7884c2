// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package extract pulls absolute http(s) URLs out of email content for
// security review. It combines HTML attribute extraction with a plain-text
// scan so URLs survive regardless of how the message body is encoded.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// urlPattern matches candidate URLs in free text. A match runs from the
// scheme to the first whitespace or boundary character that cannot appear
// in a URL.
var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

// URLs returns the deduplicated set of absolute http(s) URLs found in
// content, which may be HTML or plain text. Hyperlink targets and image
// sources are collected from markup; the full content is additionally
// scanned with urlPattern. Malformed candidates are dropped silently.
// Empty content yields an empty result.
func URLs(content string) []string {
	if content == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var urls []string
	add := func(raw string) {
		if !isHTTPURL(raw) {
			return
		}
		if _, ok := seen[raw]; ok {
			return
		}
		seen[raw] = struct{}{}
		urls = append(urls, raw)
	}

	if strings.Contains(content, "<") {
		collectMarkupURLs(content, add)
	}

	for _, m := range urlPattern.FindAllString(content, -1) {
		add(m)
	}

	return urls
}

// collectMarkupURLs parses content as HTML and feeds every <a href> and
// <img src> value to add. html.Parse never fails on malformed input, it
// builds a best-effort tree, so markup that is not really HTML is harmless.
func collectMarkupURLs(content string, add func(string)) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if v, ok := attr(n, "href"); ok {
					add(v)
				}
			case "img":
				if v, ok := attr(n, "src"); ok {
					add(v)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// isHTTPURL reports whether raw parses as a URL with an http or https scheme.
func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
