package testutil

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	var n atomic.Int32
	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(5 * time.Millisecond)
			n.Add(1)
		}
	}()

	if err := Eventually(time.Second, func() bool { return n.Load() == 3 }); err != nil {
		t.Fatal(err)
	}
}

func TestEventuallyTimesOut(t *testing.T) {
	err := Eventually(20*time.Millisecond, func() bool { return false })
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestWithTimeout(t *testing.T) {
	sentinel := errors.New("boom")
	if err := WithTimeout(time.Second, func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("expected fn error, got %v", err)
	}

	block := make(chan struct{})
	defer close(block)
	err := WithTimeout(20*time.Millisecond, func() error {
		<-block
		return nil
	})
	if err == nil {
		t.Error("expected timeout error")
	}
}

func TestReceive(t *testing.T) {
	ch := make(chan int, 1)
	go func() { ch <- 42 }()

	if got := Receive(t, ch); got != 42 {
		t.Errorf("Receive = %d, want 42", got)
	}
}
