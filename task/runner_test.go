/*
Copyright (C) 2026 the vecfilter authors.
This file is part of vecfilter.

vecfilter is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

vecfilter is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with vecfilter.  If not, see <http://www.gnu.org/licenses/>.
*/

package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunnerRunsToCompletion(t *testing.T) {
	r := New(nil)
	var percents []int
	tk := r.Start(context.Background(), "layer1", func(ctx context.Context, ctl *Control) error {
		if err := ctl.Checkpoint(Progress{Percent: 50, Text: "halfway"}); err != nil {
			return err
		}
		return ctl.Checkpoint(Progress{Percent: 100, Text: "done"})
	}, func(p Progress) {
		percents = append(percents, p.Percent)
	})

	if err := tk.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(percents) != 2 || percents[0] != 50 || percents[1] != 100 {
		t.Fatalf("expected progress [50 100], got %v", percents)
	}
}

func TestRunnerPropagatesError(t *testing.T) {
	r := New(nil)
	wantErr := errors.New("boom")
	tk := r.Start(context.Background(), "layer1", func(ctx context.Context, ctl *Control) error {
		return wantErr
	}, nil)

	err := tk.Wait(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Wait() = %v, want %v", err, wantErr)
	}
}

func TestRunnerSingleFlightCancelsPending(t *testing.T) {
	r := New(nil)
	started := make(chan struct{})
	cancelled := make(chan struct{})

	first := r.Start(context.Background(), "layer1", func(ctx context.Context, ctl *Control) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}, nil)

	<-started
	// Starting a second task for the same key must cancel the first.
	second := r.Start(context.Background(), "layer1", func(ctx context.Context, ctl *Control) error {
		return nil
	}, nil)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the first task to be cancelled by the second Start for the same key")
	}

	if err := first.Wait(context.Background()); err == nil {
		t.Fatal("expected the superseded task to return an error")
	}
	if err := second.Wait(context.Background()); err != nil {
		t.Fatalf("second task Wait: %v", err)
	}
}

func TestRunnerDistinctKeysDoNotCancelEachOther(t *testing.T) {
	r := New(nil)
	blockA := make(chan struct{})

	a := r.Start(context.Background(), "A", func(ctx context.Context, ctl *Control) error {
		<-blockA
		return nil
	}, nil)
	b := r.Start(context.Background(), "B", func(ctx context.Context, ctl *Control) error {
		return nil
	}, nil)

	if err := b.Wait(context.Background()); err != nil {
		t.Fatalf("B Wait: %v", err)
	}
	if a.Done() {
		t.Fatal("A should still be running; distinct keys must not cancel each other")
	}
	close(blockA)
	if err := a.Wait(context.Background()); err != nil {
		t.Fatalf("A Wait: %v", err)
	}
}

func TestTaskIDsAreUnique(t *testing.T) {
	r := New(nil)
	a := r.Start(context.Background(), "A", func(ctx context.Context, ctl *Control) error { return nil }, nil)
	a.Wait(context.Background())
	b := r.Start(context.Background(), "A", func(ctx context.Context, ctl *Control) error { return nil }, nil)
	b.Wait(context.Background())

	if a.ID() == b.ID() {
		t.Fatal("expected distinct task IDs across successive runs of the same key")
	}
}
