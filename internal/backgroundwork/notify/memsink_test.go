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

package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariogk/agentsdashboard/internal/backgroundwork"
)

func TestMemorySink_Publish(t *testing.T) {
	sink := NewMemorySink()

	err := sink.Publish(context.Background(), Envelope{
		Title:         "Repository scan queued",
		Severity:      SeverityInfo,
		Source:        SourceBackgroundWork,
		CorrelationID: "w-1",
	})
	require.NoError(t, err)

	envs := sink.Envelopes()
	require.Len(t, envs, 1)
	assert.Equal(t, "w-1", envs[0].CorrelationID)
}

func TestHumanizeKind(t *testing.T) {
	cases := map[string]string{
		"WorkerImageResolution":   "Worker image resolution",
		"RepositoryScan":          "Repository scan",
		"TaskRuntimeProvisioning": "Task runtime provisioning",
		"Other":                   "Other",
	}
	for in, want := range cases {
		assert.Equal(t, want, humanizeKind(backgroundwork.WorkKind(in)))
	}
}
