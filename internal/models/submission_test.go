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

package models

import "testing"

func TestValidateScore(t *testing.T) {
	tests := []struct {
		name    string
		score   int
		wantErr bool
	}{
		{name: "lower bound", score: 0},
		{name: "upper bound", score: 100},
		{name: "midrange", score: 55},
		{name: "below range", score: -1, wantErr: true},
		{name: "above range", score: 101, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScore(tt.score)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScore(%d) = %v, wantErr %v", tt.score, err, tt.wantErr)
			}
		})
	}
}
