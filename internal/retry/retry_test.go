package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("connection refused")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func noSleep(context.Context, time.Duration) error { return nil }

func testPolicy(attempts int) Policy {
	return Policy{
		Attempts:  attempts,
		Delay:     time.Second,
		Retryable: isTransient,
		OnRetry:   func(string, int, error) {},
		Sleep:     noSleep,
	}
}

func TestDo_SucceedsFirstTime(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), testPolicy(3), "op", func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if v != 42 {
		t.Errorf("Expected 42, got %d", v)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	retries := 0
	p := testPolicy(3)
	p.OnRetry = func(op string, attempt int, err error) {
		retries++
		if op != "search" {
			t.Errorf("Expected op 'search', got %q", op)
		}
	}

	v, err := Do(context.Background(), p, "search", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if v != "ok" {
		t.Errorf("Expected 'ok', got %q", v)
	}
	if retries != 2 {
		t.Errorf("Expected 2 retries, got %d", retries)
	}
}

func TestDo_ExhaustionIsFatal(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), testPolicy(3), "connect", func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})

	if calls != 4 {
		t.Errorf("Expected 3 retries plus a final attempt (4 calls), got %d", calls)
	}

	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Expected *FatalError, got %T: %v", err, err)
	}
	if fatal.Op != "connect" || fatal.Attempts != 4 {
		t.Errorf("Unexpected fatal error fields: %+v", fatal)
	}
	if !errors.Is(err, errTransient) {
		t.Error("Expected fatal error to unwrap to the last cause")
	}
}

func TestDo_NonRetryableReturnedImmediately(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	_, err := Do(context.Background(), testPolicy(3), "op", func(context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("Expected permanent error, got %v", err)
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		t.Error("Non-retryable error must not be escalated to fatal")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_ZeroAttemptsStillTriesOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), testPolicy(0), "op", func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Errorf("Expected *FatalError, got %v", err)
	}
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := testPolicy(3)
	p.Sleep = nil
	p.Delay = time.Hour

	_, err := Do(ctx, p, "op", func(context.Context) (int, error) {
		return 0, errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
