package service

import (
	"context"
	"errors"
	"testing"

	"github.com/veritract/veritract/dbopen"
	_ "modernc.org/sqlite"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()
	return NewQueue(dbopen.OpenMemory(t, dbopen.WithSchema(QueueSchema)))
}

func TestQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	if job, err := q.Poll(ctx); err != nil || job != nil {
		t.Fatalf("empty queue: job = %v, err = %v", job, err)
	}

	jobID, err := q.Submit(ctx, "agr_1")
	if err != nil {
		t.Fatal(err)
	}

	job, err := q.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.ID != jobID || job.AgreementID != "agr_1" {
		t.Fatalf("polled job = %+v", job)
	}
	if job.Status != StatusProcessing || job.StartedAt == nil {
		t.Fatalf("claimed job = %+v", job)
	}

	// The claimed job is invisible to a second poll.
	if second, err := q.Poll(ctx); err != nil || second != nil {
		t.Fatalf("second poll: job = %v, err = %v", second, err)
	}

	if err := q.Complete(ctx, jobID); err != nil {
		t.Fatal(err)
	}
	got, err := q.Get(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("completed job = %+v", got)
	}
}

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	first, err := q.Submit(ctx, "agr_1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Submit(ctx, "agr_2"); err != nil {
		t.Fatal(err)
	}

	job, err := q.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job.ID != first {
		t.Fatalf("polled %s, want oldest job %s", job.ID, first)
	}
}

func TestQueueFailRetryPoison(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	jobID, err := q.Submit(ctx, "agr_1")
	if err != nil {
		t.Fatal(err)
	}

	// Default max_attempts is 3: two failures stay retryable, the third poisons.
	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := q.Poll(ctx); err != nil {
			t.Fatal(err)
		}
		if err := q.Fail(ctx, jobID, "stage blew up"); err != nil {
			t.Fatal(err)
		}
		job, err := q.Get(ctx, jobID)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status != StatusFailed || job.Attempts != attempt {
			t.Fatalf("after failure %d: %+v", attempt, job)
		}

		n, err := q.RetryFailed(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Fatalf("retried = %d, want 1", n)
		}
	}

	if _, err := q.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if err := q.Fail(ctx, jobID, "stage blew up again"); err != nil {
		t.Fatal(err)
	}
	job, err := q.Get(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != StatusPoison || job.Attempts != 3 {
		t.Fatalf("after third failure: %+v", job)
	}
	if job.Error != "stage blew up again" {
		t.Fatalf("error = %q", job.Error)
	}

	// Poison jobs are not requeued.
	n, err := q.RetryFailed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("retried = %d, want 0", n)
	}
}

func TestQueueLatest(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	if _, err := q.Latest(ctx, "agr_1"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}

	if _, err := q.Submit(ctx, "agr_1"); err != nil {
		t.Fatal(err)
	}
	second, err := q.Submit(ctx, "agr_1")
	if err != nil {
		t.Fatal(err)
	}

	job, err := q.Latest(ctx, "agr_1")
	if err != nil {
		t.Fatal(err)
	}
	if job.ID != second {
		t.Fatalf("latest = %s, want %s", job.ID, second)
	}
}

func TestQueueGetUnknown(t *testing.T) {
	q := testQueue(t)
	if _, err := q.Get(context.Background(), "job_missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}
