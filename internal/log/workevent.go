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

package log

import "log/slog"

// WorkEvent describes a single background-work snapshot transition for logging
// purposes. It mirrors the shape of backgroundwork.Snapshot without importing
// that package, keeping this a leaf dependency of the scheduler.
type WorkEvent struct {
	// WorkID is the opaque identifier assigned at submission.
	WorkID string

	// OperationKey is the caller-supplied dedupe key.
	OperationKey string

	// Kind categorizes the work item (e.g. "RepositoryScan").
	Kind string

	// State is the work item's state after this transition.
	State string

	// PercentComplete is the progress percentage at this transition.
	PercentComplete int

	// Message is the optional human-readable progress message.
	Message string

	// ErrorMessage is populated only when State is a failure state.
	ErrorMessage string
}

// LogWorkEvent logs a single snapshot transition with consistent field names.
// Failures (non-empty ErrorMessage) are logged at error level; everything else
// at debug level, since transitions are high-frequency relative to daemon
// lifecycle events.
func LogWorkEvent(logger *slog.Logger, evt WorkEvent) {
	attrs := []any{
		EventKey, "work_transition",
		WorkIDKey, evt.WorkID,
		OperationKeyKey, evt.OperationKey,
		KindKey, evt.Kind,
		StateKey, evt.State,
		"percent_complete", evt.PercentComplete,
	}

	if evt.Message != "" {
		attrs = append(attrs, "message", evt.Message)
	}

	if evt.ErrorMessage != "" {
		attrs = append(attrs, "error", evt.ErrorMessage)
		logger.Error("work item transitioned", attrs...)
		return
	}

	logger.Debug("work item transitioned", attrs...)
}
