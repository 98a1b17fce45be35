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

package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariogk/agentsdashboard/internal/backgroundwork/notify"
)

func TestSink_Publish_Success(t *testing.T) {
	var received payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewSink(server.URL)
	err := sink.Publish(context.Background(), notify.Envelope{
		Title:         "Repository scan succeeded",
		Message:       "done",
		Severity:      notify.SeverityInfo,
		Source:        notify.SourceBackgroundWork,
		CorrelationID: "w-1",
	})

	require.NoError(t, err)
	require.Len(t, received.Attachments, 1)
	assert.Equal(t, "Repository scan succeeded", received.Attachments[0].Title)
	assert.Equal(t, severityColor[notify.SeverityInfo], received.Attachments[0].Color)
}

func TestSink_Publish_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sink := NewSink(server.URL)
	err := sink.Publish(context.Background(), notify.Envelope{
		Title:    "Repository scan failed",
		Severity: notify.SeverityError,
	})

	assert.Error(t, err)
}
