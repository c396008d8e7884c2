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

// Package render screenshots the HTML body of a reported email with a
// headless browser so reviewers can inspect it without opening hostile
// markup themselves. Rendering is always best-effort: a failure leaves the
// submission without an image, nothing more.
package render

import "regexp"

var (
	scriptPattern      = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	eventAttrPattern   = regexp.MustCompile(`(?i)\s(on\w+)="[^"]*"`)
	eventAttrPatternSQ = regexp.MustCompile(`(?i)\s(on\w+)='[^']*'`)
	relativeSrcPattern = regexp.MustCompile(`src="/[^"]*"`)
)

// transparentPixel replaces root-relative image sources that would otherwise
// fail to load inside the browser.
const transparentPixel = `src="data:image/gif;base64,R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7"`

// Sanitize strips active content from untrusted email HTML before it is
// loaded into the browser: script elements, inline event handlers, and
// root-relative image sources.
func Sanitize(html string) string {
	if html == "" {
		return ""
	}
	html = scriptPattern.ReplaceAllString(html, "")
	html = eventAttrPattern.ReplaceAllString(html, "")
	html = eventAttrPatternSQ.ReplaceAllString(html, "")
	html = relativeSrcPattern.ReplaceAllString(html, transparentPixel)
	return html
}

// documentShell wraps sanitized email HTML in a fixed-width page so every
// screenshot renders consistently.
const documentShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body {
  font-family: Arial, sans-serif;
  max-width: 800px;
  margin: 0 auto;
  padding: 20px;
  background: white;
}
img {
  max-width: 100%%;
  height: auto;
}
</style>
</head>
<body>
%s
</body>
</html>`
