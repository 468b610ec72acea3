package chat

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pixelfold/pixchat-server/internal/realtime"
	"github.com/pixelfold/pixchat-server/internal/store"
	"github.com/pixelfold/pixchat-server/internal/store/sqlite"
)

// fakeBlob records uploads and can be told to fail, so tests can assert that
// rejected sends never reach storage.
type fakeBlob struct {
	mu    sync.Mutex
	puts  int
	fail  bool
	bytes int
}

func (f *fakeBlob) Put(_ context.Context, bucket, name string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("storage unreachable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.puts++
	f.bytes += len(data)
	return "http://blobs.test/" + bucket + "/" + name, nil
}

func (f *fakeBlob) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

// failingStore wraps a real store and fails message inserts on demand.
type failingStore struct {
	store.Store
	failInsert bool
}

func (f *failingStore) InsertMessage(ctx context.Context, msg *store.Message) error {
	if f.failInsert {
		return fmt.Errorf("insert rejected by policy")
	}
	return f.Store.InsertMessage(ctx, msg)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestService(t *testing.T, st store.Store) (*Service, *fakeBlob, *realtime.Broker) {
	t.Helper()
	if st == nil {
		st = newTestStore(t)
	}
	blobs := &fakeBlob{}
	broker := realtime.NewBroker()
	logger := zerolog.Nop()
	return NewService(st, blobs, broker, &logger), blobs, broker
}

func createProfile(t *testing.T, st store.Store, username string) *store.Profile {
	t.Helper()
	p, err := st.CreateProfile(context.Background(), username, "hash", "")
	if err != nil {
		t.Fatalf("failed to create profile %s: %v", username, err)
	}
	return p
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
