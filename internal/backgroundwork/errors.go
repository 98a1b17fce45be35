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
	scheduleerrors "github.com/mariogk/agentsdashboard/pkg/errors"
)

// errEmptyOperationKey is returned by Enqueue when the caller supplies an
// empty (or whitespace-only) operation key. Per §7, InvalidArgument is
// one of the two submitter-visible failure kinds.
func errEmptyOperationKey() error {
	return &scheduleerrors.InvalidArgumentError{
		Argument: "operationKey",
		Reason:   "must not be empty",
	}
}

// errNonPositiveConcurrency is returned by NewScheduler when the
// configured worker count is negative (zero selects
// DefaultMaxConcurrency instead).
func errNonPositiveConcurrency(got int) error {
	return &scheduleerrors.InvalidArgumentError{
		Argument: "maxConcurrency",
		Reason:   "must be a positive integer",
	}
}

// errQueueFull is returned by Enqueue when the submission queue has a
// finite capacity and is full. Per §7, ResourceExhausted is the other
// submitter-visible failure kind.
func errQueueFull(capacity int) error {
	return &scheduleerrors.ResourceExhaustedError{
		Resource: "work queue",
		Limit:    capacity,
	}
}
