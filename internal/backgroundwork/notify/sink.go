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

// Package notify implements the update-dispatcher subscriber that
// converts background-work lifecycle transitions into user-facing
// notification envelopes, and the NotificationSink contract those
// envelopes are published through.
package notify

import "context"

// Severity classifies a notification for display purposes.
type Severity string

const (
	SeverityInfo    Severity = "Info"
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
)

// Source identifies which subsystem produced a notification. The relay
// always uses SourceBackgroundWork; the type exists so a sink can be
// shared with other future publishers.
type Source string

const (
	SourceBackgroundWork Source = "BackgroundWork"
)

// Envelope is the payload handed to a NotificationSink.
type Envelope struct {
	Title         string
	Message       string
	Severity      Severity
	Source        Source
	CorrelationID string
}

// Sink is the external contract required by the relay (§6). A concrete
// sink delivers an Envelope to wherever the user actually looks: Slack,
// email, a log stream, a pager. Sink call failures are the sink's
// problem to report via the returned error; the relay logs and swallows
// them per §4.F — a bad notification is not a reason to destabilize
// scheduling.
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
}

// SinkFunc adapts a plain function to the Sink interface, the same
// handler-as-function pattern net/http's HandlerFunc uses.
type SinkFunc func(ctx context.Context, env Envelope) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}
