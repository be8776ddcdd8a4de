package bot

import (
	"testing"
	"time"

	"guildwarden/internal/storage"

	"go.uber.org/zap"
)

func TestCloseStopsAuditCleanup(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatal(err)
	}

	b := &Bot{
		logger: zap.NewNop(),
		store:  store,
		done:   make(chan struct{}),
	}
	b.startAuditCleanup(1)

	finished := make(chan struct{})
	go func() {
		b.Close()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close should stop the cleanup goroutine")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := &Bot{logger: zap.NewNop(), done: make(chan struct{})}
	b.Close()
	b.Close()
}
