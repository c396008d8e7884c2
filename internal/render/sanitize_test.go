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

package render

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		wantNot []string
		want    []string
	}{
		{
			name:    "script elements removed",
			html:    `<p>hello</p><script>alert("xss")</script><p>world</p>`,
			wantNot: []string{"<script", "alert"},
			want:    []string{"<p>hello</p>", "<p>world</p>"},
		},
		{
			name:    "multiline script removed",
			html:    "<div>a</div><SCRIPT type=\"text/javascript\">\nsteal();\n</SCRIPT><div>b</div>",
			wantNot: []string{"steal"},
			want:    []string{"<div>a</div>", "<div>b</div>"},
		},
		{
			name:    "double quoted event handlers removed",
			html:    `<img src="https://x.example/a.png" onerror="evil()">`,
			wantNot: []string{"onerror", "evil"},
			want:    []string{`src="https://x.example/a.png"`},
		},
		{
			name:    "single quoted event handlers removed",
			html:    `<body onload='evil()'>content</body>`,
			wantNot: []string{"onload", "evil"},
			want:    []string{"content"},
		},
		{
			name:    "root relative image sources replaced",
			html:    `<img src="/tracking/pixel.gif"><img src="/logo.png">`,
			wantNot: []string{"/tracking/pixel.gif", "/logo.png"},
			want:    []string{"data:image/gif;base64"},
		},
		{
			name: "absolute image sources preserved",
			html: `<img src="https://cdn.example/banner.jpg">`,
			want: []string{`src="https://cdn.example/banner.jpg"`},
		},
		{
			name: "empty input",
			html: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.html)
			for _, s := range tt.wantNot {
				if strings.Contains(got, s) {
					t.Errorf("Sanitize output still contains %q: %s", s, got)
				}
			}
			for _, s := range tt.want {
				if !strings.Contains(got, s) {
					t.Errorf("Sanitize output missing %q: %s", s, got)
				}
			}
		})
	}
}
