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

// transitionTable encodes the legal (from, to) pairs of §4.C as an
// explicit table rather than leaving them implicit in call order. A
// Running -> Running entry models a progress report: the state does not
// change but the update is still a legal "transition" through update().
var transitionTable = map[WorkState]map[WorkState]bool{
	WorkStatePending: {
		WorkStateRunning:   true,
		WorkStateCancelled: true,
		WorkStateFailed:    true,
	},
	WorkStateRunning: {
		WorkStateRunning:   true,
		WorkStateSucceeded: true,
		WorkStateFailed:    true,
		WorkStateCancelled: true,
	},
	// Terminal states are absorbing: no entry means no outgoing transition.
}

// isLegalTransition reports whether moving from `from` to `to` is allowed
// by the state machine in §4.C. Terminal states never have an outgoing
// entry in transitionTable, so any transition out of one is rejected.
func isLegalTransition(from, to WorkState) bool {
	targets, ok := transitionTable[from]
	if !ok {
		return false
	}
	return targets[to]
}
