// Copyright 2025 Tom Barlow
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

package backgroundwork

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLegalTransition(t *testing.T) {
	cases := []struct {
		from, to WorkState
		want     bool
	}{
		{WorkStatePending, WorkStateRunning, true},
		{WorkStatePending, WorkStateCancelled, true},
		{WorkStatePending, WorkStateFailed, true},
		{WorkStatePending, WorkStateSucceeded, false},
		{WorkStateRunning, WorkStateRunning, true},
		{WorkStateRunning, WorkStateSucceeded, true},
		{WorkStateRunning, WorkStateFailed, true},
		{WorkStateRunning, WorkStateCancelled, true},
		{WorkStateRunning, WorkStatePending, false},
		{WorkStateSucceeded, WorkStateRunning, false},
		{WorkStateFailed, WorkStateRunning, false},
		{WorkStateCancelled, WorkStateRunning, false},
	}

	for _, tc := range cases {
		got := isLegalTransition(tc.from, tc.to)
		assert.Equalf(t, tc.want, got, "%s -> %s", tc.from, tc.to)
	}
}
