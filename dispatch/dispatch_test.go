package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hexwalker/vertex/dispatch"
)

func TestDispatcher_DispatchRunsTaskAndResolvesFuture(t *testing.T) {
	d := dispatch.New(false)
	if err := d.CreateChannel(dispatch.ChannelSymbolLoad); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	var ran atomic.Bool
	fut, err := d.Dispatch(context.Background(), dispatch.ChannelSymbolLoad, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := fut.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ran.Load() {
		t.Error("expected the task to have run")
	}
}

func TestDispatcher_DispatchUnknownChannelErrors(t *testing.T) {
	d := dispatch.New(false)
	_, err := d.Dispatch(context.Background(), dispatch.ChannelFreeze, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected an error dispatching to an unregistered channel")
	}
}

func TestDispatcher_FireAndForgetReportsBusyWhileTaskInFlight(t *testing.T) {
	d := dispatch.New(false)
	if err := d.CreateChannel(dispatch.ChannelFreeze); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	release := make(chan struct{})
	if status := d.DispatchFireAndForget(context.Background(), dispatch.ChannelFreeze, func(ctx context.Context) error {
		<-release
		return nil
	}); status != dispatch.StatusOK {
		t.Fatalf("first dispatch status = %v, want ok", status)
	}

	deadline := time.Now().Add(time.Second)
	for !d.IsChannelBusy(dispatch.ChannelFreeze) {
		if time.Now().After(deadline) {
			t.Fatal("channel never reported busy")
		}
		time.Sleep(time.Millisecond)
	}

	status := d.DispatchFireAndForget(context.Background(), dispatch.ChannelFreeze, func(ctx context.Context) error { return nil })
	close(release)

	if status != dispatch.StatusBusy {
		t.Errorf("status = %v, want busy while the one in-flight task is still running, got %v", status, status)
	}
}

func TestDispatcher_WorkerPoolDistributesAcrossWorkers(t *testing.T) {
	d := dispatch.New(false)
	if err := d.CreateWorkerPool(dispatch.ReaderPool(0), 4); err != nil {
		t.Fatalf("CreateWorkerPool: %v", err)
	}
	defer d.DestroyWorkerPool(dispatch.ReaderPool(0))

	var mu sync.Mutex
	seen := make(map[int]bool)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		idx := i
		if _, err := d.EnqueueOnWorker(context.Background(), dispatch.ReaderPool(0), idx, func(ctx context.Context) error {
			defer wg.Done()
			mu.Lock()
			seen[idx] = true
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("EnqueueOnWorker: %v", err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 4 {
		t.Errorf("seen = %v, want all 4 workers to have run a task", seen)
	}
}

func TestDispatcher_EnqueueOnWorkerOutOfRangeErrors(t *testing.T) {
	d := dispatch.New(false)
	if err := d.CreateWorkerPool(dispatch.ReaderPool(1), 2); err != nil {
		t.Fatalf("CreateWorkerPool: %v", err)
	}
	defer d.DestroyWorkerPool(dispatch.ReaderPool(1))

	_, err := d.EnqueueOnWorker(context.Background(), dispatch.ReaderPool(1), 5, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Error("expected an out-of-range worker index to error")
	}
}

func TestDispatcher_SingleThreadModeFoldsOntoMainQueue(t *testing.T) {
	d := dispatch.New(true)
	if err := d.CreateChannel(dispatch.ChannelDebuggerWorker); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	var ran atomic.Bool
	status := d.DispatchFireAndForget(context.Background(), dispatch.ChannelDebuggerWorker, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if status != dispatch.StatusOK {
		t.Fatalf("status = %v, want ok", status)
	}
	if ran.Load() {
		t.Fatal("single-thread-mode task should not run until DrainMain is called")
	}

	if n := d.DrainMain(context.Background()); n != 1 {
		t.Fatalf("DrainMain ran %d tasks, want 1", n)
	}
	if !ran.Load() {
		t.Error("expected the task to run during DrainMain")
	}
}

func TestFreezeAdapter_TryFreezeReflectsDispatchStatus(t *testing.T) {
	d := dispatch.New(false)
	if err := d.CreateChannel(dispatch.ChannelFreeze); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	adapter := dispatch.FreezeAdapter{D: d, Channel: dispatch.ChannelFreeze}

	var ran atomic.Bool
	if !adapter.TryFreeze(func() { ran.Store(true) }) {
		t.Fatal("expected TryFreeze to succeed on an idle channel")
	}

	deadline := time.Now().Add(time.Second)
	for !ran.Load() {
		if time.Now().After(deadline) {
			t.Fatal("freeze task never ran")
		}
		time.Sleep(time.Millisecond)
	}
}
