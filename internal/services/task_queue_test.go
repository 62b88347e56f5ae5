package services

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTaskTypeGeneration_Constant(t *testing.T) {
	if TaskTypeGeneration != "policy:generate" {
		t.Errorf("TaskTypeGeneration = %q, expected %q", TaskTypeGeneration, "policy:generate")
	}
}

func TestSyncQueue_ProcessesTask(t *testing.T) {
	queue := NewSyncQueue()

	var mu sync.Mutex
	var processed []uint
	done := make(chan struct{})

	queue.SetProcessor(func(ctx context.Context, task *GenerationTask) error {
		mu.Lock()
		processed = append(processed, task.FeedbackID)
		mu.Unlock()
		close(done)
		return nil
	})

	if err := queue.Enqueue(&GenerationTask{FeedbackID: 42}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 1 || processed[0] != 42 {
		t.Errorf("processed = %v, expected [42]", processed)
	}
}

func TestSyncQueue_NoProcessor(t *testing.T) {
	queue := NewSyncQueue()

	// Without a processor the task is dropped, not an error.
	if err := queue.Enqueue(&GenerationTask{FeedbackID: 1}); err != nil {
		t.Errorf("Enqueue() error = %v, expected nil", err)
	}
}

func TestSyncQueue_IsAsync(t *testing.T) {
	if NewSyncQueue().IsAsync() {
		t.Error("SyncQueue.IsAsync() should be false")
	}
}

func TestSyncQueue_Close(t *testing.T) {
	if err := NewSyncQueue().Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
