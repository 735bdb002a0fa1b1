package game

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil || hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Error("hub channels and client map must be initialized")
	}
	if count := hub.GetClientCount(); count != 0 {
		t.Errorf("GetClientCount() = %v, want 0", count)
	}
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub(nil)

	// hub not running, so the buffer fills up
	for i := 0; i < HUB_BROADCAST_BUFFER; i++ {
		hub.BroadcastSettlement(SettlementMessage{RoundID: "r", Won: true})
	}

	done := make(chan struct{})
	go func() {
		hub.Broadcast(map[string]string{"msg": "overflow"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast() blocked when channel was full")
	}
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	hub.BroadcastSettlement(SettlementMessage{RoundID: "r1", Won: false})
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestHub_RegisterAfterStop(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	returned := make(chan struct{})
	go func() {
		hub.RegisterClient(nil, "late")
		hub.UnregisterClient(nil)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("RegisterClient() blocked after Run() returned")
	}
	if count := hub.GetClientCount(); count != 0 {
		t.Errorf("GetClientCount() = %v, want 0", count)
	}
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hub.BroadcastSettlement(SettlementMessage{Level: n})
			_ = hub.GetClientCount()
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("concurrent broadcasts timed out")
	}
}

func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	msg := SettlementMessage{RoundID: "bench", Won: true, Multiplier: 2}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastSettlement(msg)
	}
}
