package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
)

func TestRegisterDuplicateName(t *testing.T) {
	b := New()
	defer b.Close()

	if _, err := b.Register("discord"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if _, err := b.Register("discord"); err != ErrDuplicateName {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestPublishExcludesSender(t *testing.T) {
	b := New()
	defer b.Close()

	dc, _ := b.Register("discord")
	qq, _ := b.Register("qq")

	ctx := context.Background()
	dc.Send(ctx, bridge.Message{ID: "m1"})

	got, ok := qq.Recv(ctx)
	if !ok || got.ID != "m1" {
		t.Fatalf("expected qq to receive m1, got %+v ok=%v", got, ok)
	}

	select {
	case m := <-dc.ch:
		t.Fatalf("sender should not receive its own message, got %+v", m)
	default:
	}
}

func TestPublishFanOutToAllOthers(t *testing.T) {
	b := New()
	defer b.Close()

	dc, _ := b.Register("discord")
	qq, _ := b.Register("qq")
	tg, _ := b.Register("telegram")

	ctx := context.Background()
	dc.Send(ctx, bridge.Message{ID: "m1"})

	for _, sub := range []*Subscription{qq, tg} {
		got, ok := sub.Recv(ctx)
		if !ok || got.ID != "m1" {
			t.Fatalf("%s: expected to receive m1, got %+v ok=%v", sub.Name(), got, ok)
		}
	}
}

func TestDeliverDropsOldestOnFullQueue(t *testing.T) {
	b := New()
	defer b.Close()

	dc, _ := b.Register("discord")
	qq, _ := b.Register("qq")

	ctx := context.Background()
	for i := 0; i < SubscriberQueueSize; i++ {
		dc.Send(ctx, bridge.Message{ID: "fill"})
	}
	// qq's queue is now full of "fill"; one more publish should drop the
	// oldest entry and still deliver the newest.
	dc.Send(ctx, bridge.Message{ID: "overflow"})

	var last bridge.Message
	for i := 0; i < SubscriberQueueSize; i++ {
		m, ok := qq.Recv(ctx)
		if !ok {
			t.Fatalf("recv %d: channel closed unexpectedly", i)
		}
		last = m
	}
	if last.ID != "overflow" {
		t.Fatalf("expected last message to be 'overflow', got %q", last.ID)
	}
}

func TestCloseClosedUnblocksRecv(t *testing.T) {
	b := New()
	sub, _ := b.Register("discord")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := sub.Recv(context.Background())
		if ok {
			t.Error("expected ok=false after Close")
		}
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestRegisterAfterCloseFails(t *testing.T) {
	b := New()
	b.Close()

	if _, err := b.Register("discord"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRecvContextCancel(t *testing.T) {
	b := New()
	defer b.Close()
	sub, _ := b.Register("discord")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := sub.Recv(ctx)
	if ok {
		t.Fatal("expected ok=false for a canceled context")
	}
}

func TestConcurrentRegisterAndPublish(t *testing.T) {
	b := New()
	defer b.Close()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i%26))
			sub, err := b.Register(name + string(rune(i)))
			if err != nil {
				return
			}
			sub.Send(context.Background(), bridge.Message{ID: "x"})
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent register/publish deadlocked")
	}
}
