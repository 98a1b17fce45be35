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

// Package backgroundwork implements the Scheduler: a dedupe-aware,
// bounded-concurrency coordinator for long-running work submissions.
//
// The exported surface is small and deliberately mirrors the daemon
// Runner one layer up the stack: Enqueue to submit, TryGet/List to poll,
// Subscribe/Unsubscribe for change notifications, StartAsync/StopAsync
// for lifecycle control. Everything else (the registry, dedupe index,
// state machine, queue, dispatcher, executor) is internal plumbing none
// of the scheduler's callers need to see.
package backgroundwork
