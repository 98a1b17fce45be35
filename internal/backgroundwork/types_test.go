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
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkState_IsTerminal(t *testing.T) {
	assert.False(t, WorkStatePending.IsTerminal())
	assert.False(t, WorkStateRunning.IsTerminal())
	assert.True(t, WorkStateSucceeded.IsTerminal())
	assert.True(t, WorkStateFailed.IsTerminal())
	assert.True(t, WorkStateCancelled.IsTerminal())
}

func TestWorkKind_IsKnown(t *testing.T) {
	assert.True(t, WorkKindRepositoryScan.IsKnown())
	assert.False(t, WorkKind("SomethingElse").IsKnown())
}

func TestNormalizedOperationKey(t *testing.T) {
	assert.Equal(t, "repo:scan:foo", normalizedOperationKey("  Repo:Scan:Foo  "))
}

func TestSnapshot_Validate(t *testing.T) {
	now := time.Now()

	t.Run("percent out of range", func(t *testing.T) {
		s := Snapshot{State: WorkStatePending, PercentComplete: 101, UpdatedAt: now}
		assert.Error(t, s.validate())
	})

	t.Run("failed without error fields", func(t *testing.T) {
		s := Snapshot{State: WorkStateFailed, UpdatedAt: now}
		assert.Error(t, s.validate())
	})

	t.Run("non-failed with error fields", func(t *testing.T) {
		s := Snapshot{State: WorkStateRunning, ErrorCode: "exception", UpdatedAt: now}
		assert.Error(t, s.validate())
	})

	t.Run("succeeded below 100", func(t *testing.T) {
		s := Snapshot{State: WorkStateSucceeded, PercentComplete: 90, UpdatedAt: now}
		assert.Error(t, s.validate())
	})

	t.Run("valid succeeded", func(t *testing.T) {
		s := Snapshot{State: WorkStateSucceeded, PercentComplete: 100, UpdatedAt: now}
		assert.NoError(t, s.validate())
	})

	t.Run("valid failed", func(t *testing.T) {
		s := Snapshot{State: WorkStateFailed, ErrorCode: "exception", ErrorMessage: "boom", UpdatedAt: now}
		assert.NoError(t, s.validate())
	})
}
