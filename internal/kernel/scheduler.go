// Copyright 2024 Google Inc. All Rights Reserved.
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

package kernel

import (
	"time"

	"github.com/cvt8/rojocos/clock"
)

// Scheduler is the round-robin scheduler of spec.md §4.6: it advances
// a cursor over PIDs 1..N-1 and hands the next runnable descriptor to
// the caller. If none are runnable, Next reports so at once; the
// scheduler does not spin or poll the keyboard buffer.
type Scheduler struct {
	k       *Kernel
	clk     clock.Clock
	quantum time.Duration
	lastPID int32
}

// NewScheduler builds a scheduler over k, ticking every quantum
// according to clk (tests inject a clock.SimulatedClock to drive
// deterministic preemption without real sleeps).
func NewScheduler(k *Kernel, clk clock.Clock, quantum time.Duration) *Scheduler {
	return &Scheduler{k: k, clk: clk, quantum: quantum}
}

// Next picks the next runnable PID in round-robin order starting just
// after the last one scheduled. It reports false if no process is
// currently runnable.
func (s *Scheduler) Next() (int32, bool) {
	runnable := s.k.Procs.RunnablePIDs()
	if len(runnable) == 0 {
		return 0, false
	}
	for _, pid := range runnable {
		if pid > s.lastPID {
			s.lastPID = pid
			return pid, true
		}
	}
	s.lastPID = runnable[0]
	return runnable[0], true
}

// Tick blocks until the quantum elapses on the scheduler's clock (a
// timer-tick preemption point). It does not watch the keyboard
// buffer: a key arriving does not end the wait early.
func (s *Scheduler) Tick() {
	<-s.clk.After(s.quantum)
}

// PushKey feeds one scancode into the kernel's keyboard buffer, as
// the (simulated) interrupt handler would.
func (s *Scheduler) PushKey(b byte) {
	s.k.keyboard.Push(b)
}
