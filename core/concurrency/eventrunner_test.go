// File: core/concurrency/eventrunner_test.go
// Author: momentics <momentics@gmail.com>

package concurrency

import (
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
)

func TestEventRunnerOrdering(t *testing.T) {
	r := NewEventRunner()
	defer r.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	for i := 0; i < 100; i++ {
		i := i
		if err := r.AddEvent(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		}); err != nil {
			t.Fatalf("addEvent: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order at %d: got %d", i, v)
		}
	}
}

func TestEventRunnerNestedSubmission(t *testing.T) {
	r := NewEventRunner()
	defer r.Close()

	var order []string
	done := make(chan struct{})
	if err := r.AddEvent(func() {
		order = append(order, "outer")
		_ = r.AddEvent(func() {
			order = append(order, "inner")
			close(done)
		})
		order = append(order, "outer-end")
	}); err != nil {
		t.Fatalf("addEvent: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested task did not run")
	}
	if len(order) != 3 || order[0] != "outer" || order[1] != "outer-end" || order[2] != "inner" {
		t.Fatalf("order = %v", order)
	}
}

func TestEventRunnerInRunner(t *testing.T) {
	r := NewEventRunner()
	defer r.Close()

	if r.ThreadID() == 0 {
		t.Fatal("worker goroutine id is zero")
	}
	if r.InRunner() {
		t.Fatal("test goroutine must not be the runner")
	}

	result := make(chan bool, 1)
	_ = r.AddEvent(func() { result <- r.InRunner() })
	select {
	case in := <-result:
		if !in {
			t.Fatal("task did not observe the runner goroutine")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestEventRunnerCloseRefusesTasks(t *testing.T) {
	r := NewEventRunner()
	r.Close()
	r.Close()

	if err := r.AddEvent(func() {}); err != api.ErrRunnerClosed {
		t.Fatalf("addEvent after close: err=%v", err)
	}
}

func TestEventRunnerDrainsOnClose(t *testing.T) {
	r := NewEventRunner()
	var mu sync.Mutex
	count := 0
	for i := 0; i < 10; i++ {
		_ = r.AddEvent(func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Fatalf("drained %d of 10 tasks", count)
	}
}
