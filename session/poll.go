//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoTez.
//
// GoTez is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoTez is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoTez. If not, see https://www.gnu.org/licenses/.

package session

import (
	"context"
	"math/rand"
	"time"
)

// PollStrategy decides the delay before poll number attempt (zero based).
type PollStrategy interface {
	Delay(attempt int) time.Duration
}

// FixedPoll waits the same delay between every poll.
type FixedPoll struct {
	Interval time.Duration
}

func (fp *FixedPoll) Delay(attempt int) time.Duration {
	return fp.Interval
}

// ExponentialPoll doubles the delay each attempt up to MaxDelay.
type ExponentialPoll struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (ep *ExponentialPoll) Delay(attempt int) time.Duration {
	if ep.BaseDelay <= 0 {
		return 0
	}
	delay := ep.BaseDelay
	for i := 0; i < attempt && delay < ep.MaxDelay; i++ {
		// doubling past half the cap would reach or overflow it
		if delay > ep.MaxDelay/2 {
			return ep.MaxDelay
		}
		delay *= 2
	}
	if delay > ep.MaxDelay {
		delay = ep.MaxDelay
	}
	return delay
}

// LinearPoll grows the delay by BaseDelay each attempt up to MaxDelay.
type LinearPoll struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (lp *LinearPoll) Delay(attempt int) time.Duration {
	if lp.BaseDelay <= 0 {
		return 0
	}
	if attempt >= int(lp.MaxDelay/lp.BaseDelay) {
		return lp.MaxDelay
	}
	return lp.BaseDelay * time.Duration(attempt+1)
}

// JitteredPoll adds randomness to exponential backoff
type JitteredPoll struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64 // 0.0 to 1.0
}

func (jp *JitteredPoll) Delay(attempt int) time.Duration {
	delay := (&ExponentialPoll{BaseDelay: jp.BaseDelay, MaxDelay: jp.MaxDelay}).Delay(attempt)
	if jp.Jitter > 0 {
		jitterAmount := float64(delay) * jp.Jitter * (rand.Float64() - 0.5)
		delay += time.Duration(jitterAmount)
	}
	return delay
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
