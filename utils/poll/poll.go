/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package poll waits on externally observed state with a fixed interval and a
// wall-clock budget measured from loop entry.
package poll

import (
	"context"
	"errors"
	"time"

	"k8s.io/utils/clock"
)

// Unbounded disables the deadline, the loop ends only on success, error or cancellation.
const Unbounded time.Duration = 0

// ErrTimeout is returned when the condition did not become true within the budget.
var ErrTimeout = errors.New("timed out waiting for the condition")

// ConditionFunc reports whether the awaited state was reached. A non-nil
// error aborts the loop immediately; transient failures should return false, nil.
type ConditionFunc func() (done bool, err error)

// Until evaluates condition every interval until it returns true. The first
// attempt runs immediately. After every failed attempt the elapsed time since
// entry is compared to timeout, so expiry never happens before the budget and
// at most one interval after it.
func Until(ctx context.Context, clk clock.Clock, interval, timeout time.Duration, condition ConditionFunc) error {
	if clk == nil {
		clk = clock.RealClock{}
	}
	start := clk.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := condition()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if timeout != Unbounded && clk.Since(start) >= timeout {
			return ErrTimeout
		}
		clk.Sleep(interval)
	}
}

// Settle waits a fixed delay unless ctx is cancelled first.
func Settle(ctx context.Context, clk clock.Clock, delay time.Duration) error {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	clk.Sleep(delay)
	return nil
}
