package tpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/tpcKV/lib/cache"
	"github.com/ValentinKolb/tpcKV/lib/db/engines/memory"
	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/lib/store/kvnode"
	"github.com/spf13/afero"
)

// --------------------------------------------------------------------------
// In-process replica client
// --------------------------------------------------------------------------

// fakeSlave delivers requests straight to a participant. Scripted errors are
// returned (in order) before the participant sees a request.
type fakeSlave struct {
	participant *Participant
	node        store.IStore

	mu           sync.Mutex
	prepareErrs  []error
	decideErrs   []error
	getErr       error
	blockPrepare bool
	prepares     int
	decisions    int
}

func (s *fakeSlave) pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

type fakeClient struct {
	slaves  map[uint64]*fakeSlave
	release chan struct{}
}

func (c *fakeClient) Prepare(ctx context.Context, slave SlaveInfo, op Operation) (Vote, error) {
	s := c.slaves[slave.SlaveID]
	s.mu.Lock()
	s.prepares++
	err := s.pop(&s.prepareErrs)
	block := s.blockPrepare
	s.mu.Unlock()

	if err != nil {
		return Vote{}, err
	}
	if block {
		// ignores ctx on purpose, the coordinator must not wait for it
		<-c.release
		return Vote{}, store.NewError(store.RetCNetwork, "released")
	}
	return s.participant.Prepare(op), nil
}

func (c *fakeClient) Decide(ctx context.Context, slave SlaveInfo, opID uint64, commit bool) error {
	s := c.slaves[slave.SlaveID]
	s.mu.Lock()
	s.decisions++
	err := s.pop(&s.decideErrs)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if !commit {
		return s.participant.Abort(opID)
	}
	err = s.participant.Commit(opID)
	if errors.Is(err, ErrUnknownOperation) {
		// the participant closes the connection without a reply
		return store.NewError(store.RetCNetwork, "Could not receive data")
	}
	return err
}

func (c *fakeClient) Get(ctx context.Context, slave SlaveInfo, key string) ([]byte, error) {
	s := c.slaves[slave.SlaveID]
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.participant.Get(key)
}

// newTestCluster creates a coordinator with one participant per id. With the
// ids 1 and 2 every test key has slave 1 as primary and slave 2 as secondary.
func newTestCluster(t *testing.T, timeout time.Duration, ids ...uint64) (*Coordinator, *fakeClient) {
	t.Helper()

	client := &fakeClient{slaves: make(map[uint64]*fakeSlave), release: make(chan struct{})}
	t.Cleanup(func() { close(client.release) })

	ring := NewRing()
	for _, id := range ids {
		p, node, _ := newTestParticipant(t, id, afero.NewMemMapFs(), memory.NewMemoryDB())
		client.slaves[id] = &fakeSlave{participant: p, node: node}
		ring.Add(SlaveInfo{SlaveID: id, HostName: "localhost", Port: int(1000 + id)})
	}

	c, err := cache.New(100, nil)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	coordinator := NewCoordinator(ring, client, kvnode.NewCacheOnlyNode(c), CoordinatorConfig{
		Timeout:      timeout,
		RetryBackoff: time.Millisecond,
		OpIDSeed:     func() uint64 { return 0 },
	})
	return coordinator, client
}

func requireValue(t *testing.T, node store.IStore, key, want string) {
	t.Helper()
	value, err := node.Get(key)
	if err != nil || string(value) != want {
		t.Errorf("Expected %q=%q, got %q, %v", key, want, value, err)
	}
}

func requireAbsent(t *testing.T, node store.IStore, key string) {
	t.Helper()
	if value, err := node.Get(key); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected %q to be absent, got %q, %v", key, value, err)
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestCoordinatorPutGetDelete(t *testing.T) {
	coordinator, client := newTestCluster(t, time.Second, 1, 2)
	ctx := context.Background()

	existed, err := coordinator.Put(ctx, "key", []byte("v1"))
	if err != nil || existed {
		t.Fatalf("Expected put to commit with existed=false, got %v, %v", existed, err)
	}
	for _, s := range client.slaves {
		requireValue(t, s.node, "key", "v1")
	}

	existed, err = coordinator.Put(ctx, "key", []byte("v2"))
	if err != nil || !existed {
		t.Fatalf("Expected overwrite with existed=true, got %v, %v", existed, err)
	}

	value, err := coordinator.Get(ctx, "key")
	if err != nil || string(value) != "v2" {
		t.Errorf("Expected v2, got %q, %v", value, err)
	}

	if err := coordinator.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	for _, s := range client.slaves {
		requireAbsent(t, s.node, "key")
	}

	_, err = coordinator.Get(ctx, "key")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found after delete, got %v", err)
	}
	if coordinator.LastOpID() != 3 {
		t.Errorf("Expected 3 operations, got %d", coordinator.LastOpID())
	}
}

func TestCoordinatorValidation(t *testing.T) {
	coordinator, client := newTestCluster(t, time.Second, 1, 2)

	_, err := coordinator.Put(context.Background(), strings.Repeat("k", store.MaxKeySize+1), []byte("v"))
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if coordinator.LastOpID() != 0 {
		t.Errorf("Rejected operations must not consume an operation id")
	}
	for id, s := range client.slaves {
		if s.prepares != 0 {
			t.Errorf("Slave %d must not see a rejected operation", id)
		}
	}
}

func TestCoordinatorAbortOnVote(t *testing.T) {
	coordinator, client := newTestCluster(t, time.Second, 1, 2)
	ctx := context.Background()

	// only the primary has the key, the secondary votes abort
	if _, err := client.slaves[1].node.Put("key", []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err := coordinator.Delete(ctx, "key")
	if err == nil {
		t.Fatalf("Expected delete to abort")
	}
	if !strings.HasPrefix(err.Error(), "@2=>") || strings.Contains(err.Error(), "@1=>") {
		t.Errorf("Expected only slave 2 to be named, got %q", err.Error())
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected composite error to wrap not found, got %v", err)
	}

	requireValue(t, client.slaves[1].node, "key", "v")
	for id, s := range client.slaves {
		if state := s.participant.State(1); state != OpStateAborted {
			t.Errorf("Expected slave %d to have aborted op 1, got %s", id, state)
		}
	}
}

func TestCoordinatorAbortNamesAllReplicas(t *testing.T) {
	coordinator, _ := newTestCluster(t, time.Second, 1, 2)

	err := coordinator.Delete(context.Background(), "missing")
	if err == nil {
		t.Fatalf("Expected delete of a missing key to abort")
	}
	lines := strings.Split(err.Error(), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "@1=>") || !strings.HasPrefix(lines[1], "@2=>") {
		t.Errorf("Expected one line per replica, got %q", err.Error())
	}
}

func TestCoordinatorVoteTimeout(t *testing.T) {
	coordinator, client := newTestCluster(t, 100*time.Millisecond, 1, 2)
	client.slaves[2].blockPrepare = true

	start := time.Now()
	_, err := coordinator.Put(context.Background(), "key", []byte("v"))
	if err == nil {
		t.Fatalf("Expected put to abort")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Coordinator waited too long for the vote: %s", elapsed)
	}

	want := "@2=>TimeoutError: Timeout Error: SlaveServer 2 has timed out during the first phase of 2PC"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, store.ErrTimeout) {
		t.Errorf("Expected timeout error, got %v", err)
	}

	requireAbsent(t, client.slaves[1].node, "key")
	if state := client.slaves[1].participant.State(1); state != OpStateAborted {
		t.Errorf("Expected slave 1 to abort, got %s", state)
	}
}

func TestCoordinatorRetriesNetworkErrors(t *testing.T) {
	coordinator, client := newTestCluster(t, time.Second, 1, 2)
	network := store.NewError(store.RetCNetwork, "Network Error: Could not create socket")
	client.slaves[1].prepareErrs = []error{network, network}
	client.slaves[2].decideErrs = []error{store.NewError(store.RetCTimeout, "no reply"), network}

	if _, err := coordinator.Put(context.Background(), "key", []byte("v")); err != nil {
		t.Fatalf("Expected put to commit after retries, got %v", err)
	}
	if client.slaves[1].prepares != 3 {
		t.Errorf("Expected 3 prepare attempts on slave 1, got %d", client.slaves[1].prepares)
	}
	if client.slaves[2].decisions != 3 {
		t.Errorf("Expected 3 decision attempts on slave 2, got %d", client.slaves[2].decisions)
	}
	for _, s := range client.slaves {
		requireValue(t, s.node, "key", "v")
	}
}

func TestCoordinatorDecisionStands(t *testing.T) {
	coordinator, client := newTestCluster(t, time.Second, 1, 2)
	client.slaves[2].decideErrs = []error{store.NewError(store.RetCProtocol, "unexpected reply")}

	if _, err := coordinator.Put(context.Background(), "key", []byte("v")); err != nil {
		t.Errorf("A committed operation must succeed even if a replica misbehaves, got %v", err)
	}
	requireValue(t, client.slaves[1].node, "key", "v")
}

func TestCoordinatorDecisionCancelled(t *testing.T) {
	coordinator, client := newTestCluster(t, time.Second, 1, 2)
	// more failures than the context allows
	failures := make([]error, 1000)
	for i := range failures {
		failures[i] = store.NewError(store.RetCNetwork, "down")
	}
	client.slaves[1].decideErrs = failures
	client.slaves[2].prepareErrs = []error{store.NewError(store.RetCProtocol, "XML Error: Received unparseable message")}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := coordinator.Put(ctx, "key", []byte("v"))
	if err == nil {
		t.Fatalf("Expected abort")
	}
	if !strings.Contains(err.Error(), "@1=>") || !strings.Contains(err.Error(), "@2=>ProtocolError") {
		t.Errorf("Expected both replicas to be named, got %q", err.Error())
	}
}

func TestCoordinatorGetFallback(t *testing.T) {
	coordinator, client := newTestCluster(t, time.Second, 1, 2)
	ctx := context.Background()

	// value only on the secondary, primary unreachable
	if _, err := client.slaves[2].node.Put("key", []byte("from-secondary")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	client.slaves[1].getErr = store.NewError(store.RetCNetwork, "Network Error: Could not create socket")

	value, err := coordinator.Get(ctx, "key")
	if err != nil || string(value) != "from-secondary" {
		t.Fatalf("Expected fallback to the secondary, got %q, %v", value, err)
	}

	// served from the master cache now
	client.slaves[2].getErr = store.NewError(store.RetCNetwork, "down")
	if value, err := coordinator.Get(ctx, "key"); err != nil || string(value) != "from-secondary" {
		t.Errorf("Expected cached value, got %q, %v", value, err)
	}

	_, err = coordinator.Get(ctx, "other")
	if err == nil {
		t.Fatalf("Expected error when both replicas fail")
	}
	lines := strings.Split(err.Error(), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "@1=>NetworkError") || !strings.HasPrefix(lines[1], "@2=>NetworkError") {
		t.Errorf("Expected both replicas in the error, got %q", err.Error())
	}
}

func TestCoordinatorSingleSlave(t *testing.T) {
	coordinator, client := newTestCluster(t, time.Second, 7)

	if _, err := coordinator.Put(context.Background(), "key", []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if client.slaves[7].prepares != 1 || client.slaves[7].decisions != 1 {
		t.Errorf("Expected a single replica round, got %d prepares / %d decisions",
			client.slaves[7].prepares, client.slaves[7].decisions)
	}
	requireValue(t, client.slaves[7].node, "key", "v")
}

func TestCoordinatorEmptyRing(t *testing.T) {
	coordinator, _ := newTestCluster(t, time.Second)

	if _, err := coordinator.Put(context.Background(), "key", []byte("v")); err == nil {
		t.Errorf("Expected put to fail without slaves")
	}
	if _, err := coordinator.Get(context.Background(), "key"); err == nil {
		t.Errorf("Expected get to fail without slaves")
	}
	if coordinator.LastOpID() != 0 {
		t.Errorf("Failed operations must not consume an operation id")
	}
}

func TestCoordinatorSerializesWrites(t *testing.T) {
	coordinator, client := newTestCluster(t, time.Second, 1, 2)
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			if _, err := coordinator.Put(context.Background(), key, []byte(key)); err != nil {
				t.Errorf("Put(%q) failed: %v", key, err)
			}
		}(i)
	}
	wg.Wait()

	if coordinator.LastOpID() != writers {
		t.Errorf("Expected %d operation ids, got %d", writers, coordinator.LastOpID())
	}
	for id, s := range client.slaves {
		for op := uint64(1); op <= writers; op++ {
			if state := s.participant.State(op); state != OpStateCommitted {
				t.Errorf("Slave %d: expected op %d committed, got %s", id, op, state)
			}
		}
	}
}

func TestCoordinatorAbortKeepsVoteReason(t *testing.T) {
	protocol := store.NewError(store.RetCProtocol, "unexpected reply")

	tests := []struct {
		name       string
		decideErrs map[uint64][]error
		want       []string
	}{
		{
			name: "abort acknowledged",
			want: []string{"@2=>NotFoundError: Does not exist"},
		},
		{
			name:       "abort lost on the rejecting replica",
			decideErrs: map[uint64][]error{2: {protocol}},
			want:       []string{"@2=>NotFoundError: Does not exist (abort not acknowledged: ProtocolError: unexpected reply)"},
		},
		{
			name:       "abort lost on the ready replica",
			decideErrs: map[uint64][]error{1: {protocol}},
			want:       []string{"@1=>ProtocolError: unexpected reply", "@2=>NotFoundError: Does not exist"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coordinator, client := newTestCluster(t, time.Second, 1, 2)
			for id, errs := range tt.decideErrs {
				client.slaves[id].decideErrs = errs
			}
			if _, err := client.slaves[1].node.Put("key", []byte("v")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			err := coordinator.Delete(context.Background(), "key")
			if err == nil {
				t.Fatalf("Expected delete to abort")
			}
			if got := strings.Split(err.Error(), "\n"); strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if !errors.Is(err, store.ErrNotFound) {
				t.Errorf("Expected the vote reason to survive, got %v", err)
			}
		})
	}
}

func TestCoordinatorRestartKeepsWrites(t *testing.T) {
	tests := []struct {
		name string
		seed func() uint64
	}{
		{name: "clock seeded ids"},
		{name: "reused ids", seed: func() uint64 { return 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, client := newTestCluster(t, time.Second, 1, 2)
			ctx := context.Background()
			if _, err := first.Put(ctx, "key", []byte("v1")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			// a restarted master starts with an empty cache and no memory of old ids
			c, err := cache.New(100, nil)
			if err != nil {
				t.Fatalf("Failed to create cache: %v", err)
			}
			second := NewCoordinator(first.Ring(), client, kvnode.NewCacheOnlyNode(c), CoordinatorConfig{
				Timeout:      time.Second,
				RetryBackoff: time.Millisecond,
				OpIDSeed:     tt.seed,
			})

			existed, err := second.Put(ctx, "key", []byte("v2"))
			if err != nil {
				t.Fatalf("Put after restart failed: %v", err)
			}
			if !existed {
				t.Errorf("Expected the primary to report the key as existing")
			}
			for _, s := range client.slaves {
				requireValue(t, s.node, "key", "v2")
			}
			if value, err := second.Get(ctx, "key"); err != nil || string(value) != "v2" {
				t.Errorf("Expected v2 from the restarted master, got %q, %v", value, err)
			}
		})
	}
}
