package tpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/lib/wal"
)

// --------------------------------------------------------------------------
// Replica Client
// --------------------------------------------------------------------------

// ReplicaClient carries protocol messages from the coordinator to a slave.
// Implementations must honour the context deadline and report transport
// failures as *store.Error with RetCNetwork (no reply could be exchanged) or
// RetCTimeout (no reply in time). Any other error is treated as the slave's answer.
type ReplicaClient interface {
	// Prepare asks the slave to vote on op.
	Prepare(ctx context.Context, slave SlaveInfo, op Operation) (Vote, error)
	// Decide sends the decision for opID. It returns nil once the slave acknowledged.
	Decide(ctx context.Context, slave SlaveInfo, opID uint64, commit bool) error
	// Get reads key directly from the slave.
	Get(ctx context.Context, slave SlaveInfo, key string) ([]byte, error)
}

// --------------------------------------------------------------------------
// Coordinator
// --------------------------------------------------------------------------

const (
	// DefaultTimeout bounds the vote round and every single decision or read attempt.
	DefaultTimeout = 5000 * time.Millisecond
	// DefaultRetryBackoff is the first pause between two attempts after a network error.
	DefaultRetryBackoff = 50 * time.Millisecond

	maxRetryBackoff = 2 * time.Second
)

// CoordinatorConfig configures a Coordinator. Zero values select the defaults.
type CoordinatorConfig struct {
	Timeout      time.Duration
	RetryBackoff time.Duration
	// OpIDSeed returns the id after which operations are numbered. The default
	// uses the wall clock so a restarted master does not reuse ids the slaves
	// have already logged.
	OpIDSeed func() uint64
}

func clockOpIDSeed() uint64 {
	return uint64(time.Now().UnixNano())
}

// Coordinator runs the master side of the protocol. Write operations are
// executed one at a time, reads run concurrently with them.
type Coordinator struct {
	ring    *Ring
	client  ReplicaClient
	cache   store.IStore
	timeout time.Duration
	backoff time.Duration

	mu       sync.Mutex // held for a whole write operation
	lastOpID uint64

	// bumped on every commit, a read only fills the cache if no commit happened meanwhile
	generation atomic.Uint64
}

// NewCoordinator creates a coordinator over ring. Slaves are reached through
// client, cache is the master's read cache (usually a cache-only kvnode).
func NewCoordinator(ring *Ring, client ReplicaClient, cache store.IStore, config CoordinatorConfig) *Coordinator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}
	if config.OpIDSeed == nil {
		config.OpIDSeed = clockOpIDSeed
	}
	return &Coordinator{
		ring:     ring,
		client:   client,
		cache:    cache,
		timeout:  config.Timeout,
		backoff:  config.RetryBackoff,
		lastOpID: config.OpIDSeed(),
	}
}

// Ring returns the replica ring of the coordinator.
func (c *Coordinator) Ring() *Ring {
	return c.ring
}

// LastOpID returns the id of the most recent write operation, or the seed if none ran yet.
func (c *Coordinator) LastOpID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOpID
}

// Put replicates key=value. existed reports whether the primary replica held the key before.
func (c *Coordinator) Put(ctx context.Context, key string, value []byte) (existed bool, err error) {
	return c.PerformOperation(ctx, Operation{Request: wal.RequestTPut, Key: key, Value: value})
}

// Delete removes key from both replicas.
func (c *Coordinator) Delete(ctx context.Context, key string) error {
	_, err := c.PerformOperation(ctx, Operation{Request: wal.RequestTDelete, Key: key})
	return err
}

// PerformOperation runs the two-phase commit protocol for a put or delete.
// The OpID of req is ignored, the coordinator assigns the next one.
//
// If any replica does not vote ready the operation is aborted everywhere and the
// returned error names every replica that reported a problem, one "@<id>=><msg>"
// per line. Once decided, the decision is delivered to every replica, retrying
// until they acknowledge or ctx ends.
func (c *Coordinator) PerformOperation(ctx context.Context, req Operation) (existed bool, err error) {
	if err := req.Validate(); err != nil {
		opsRejected.Inc()
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	primary, secondary, err := c.ring.Replicas(req.Key)
	if err != nil {
		opsRejected.Inc()
		return false, err
	}
	replicas := []SlaveInfo{primary}
	if secondary.SlaveID != primary.SlaveID {
		replicas = append(replicas, secondary)
	}

	c.lastOpID++
	op := req
	op.OpID = c.lastOpID

	start := time.Now()
	defer operationDuration.UpdateDuration(start)

	// Phase 1
	votes := c.collectVotes(ctx, replicas, op)
	commit := true
	for _, vote := range votes {
		commit = commit && vote.Ready
	}
	log.Debugf("op %d (%s %q): decision commit=%t", op.OpID, op.Request, op.Key, commit)

	// Phase 2
	decisionErrs := c.broadcastDecision(ctx, replicas, op.OpID, commit)

	if commit {
		c.generation.Add(1)
		c.updateCache(op)
		for i, err := range decisionErrs {
			if err != nil {
				log.Warningf("op %d committed but slave %d reported: %v", op.OpID, replicas[i].SlaveID, err)
			}
		}
		opsCommitted.Inc()
		return votes[0].Existed, nil
	}

	var errs []*ReplicaError
	for i, slave := range replicas {
		var err error
		if !votes[i].Ready {
			err = votes[i].Err
			if err == nil {
				err = store.NewError(store.RetCInvalidOperation, "voted abort")
			}
		}
		switch {
		case err == nil:
			err = decisionErrs[i]
		case decisionErrs[i] != nil:
			err = withDecisionError(err, decisionErrs[i])
		}
		if err != nil {
			errs = append(errs, &ReplicaError{SlaveID: slave.SlaveID, Err: err})
		}
	}
	opsAborted.Inc()
	log.Infof("op %d (%s %q) aborted", op.OpID, op.Request, op.Key)
	return false, compositeError(errs)
}

// withDecisionError appends a failed abort delivery to the vote error of a
// replica. The vote's code is kept.
func withDecisionError(vote, decision error) error {
	msg := vote.Error()
	var e *store.Error
	if errors.As(vote, &e) {
		msg = e.Msg
	}
	return store.NewError(store.CodeOf(vote), fmt.Sprintf("%s (abort not acknowledged: %v)", msg, decision))
}

func (c *Coordinator) updateCache(op Operation) {
	switch op.Request {
	case wal.RequestTPut:
		if _, err := c.cache.Put(op.Key, op.Value); err != nil {
			log.Warningf("failed to update master cache for %q: %v", op.Key, err)
		}
	case wal.RequestTDelete:
		if err := c.cache.Delete(op.Key); err != nil {
			log.Warningf("failed to update master cache for %q: %v", op.Key, err)
		}
	}
}

// --------------------------------------------------------------------------
// Phase 1: Votes
// --------------------------------------------------------------------------

// collectVotes asks every replica in parallel and waits at most c.timeout.
// Replicas that have not answered by then count as timed out.
func (c *Coordinator) collectVotes(ctx context.Context, replicas []SlaveInfo, op Operation) []Vote {
	roundCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		idx  int
		vote Vote
	}
	results := make(chan result, len(replicas))
	for i, slave := range replicas {
		go func(i int, slave SlaveInfo) {
			results <- result{idx: i, vote: c.requestVote(roundCtx, slave, op)}
		}(i, slave)
	}

	votes := make([]Vote, len(replicas))
	received := make([]bool, len(replicas))
	pending := len(replicas)

	for pending > 0 {
		select {
		case r := <-results:
			votes[r.idx], received[r.idx] = r.vote, true
			pending--
		case <-roundCtx.Done():
			// take what already arrived, the rest timed out
			for drained := false; !drained; {
				select {
				case r := <-results:
					votes[r.idx], received[r.idx] = r.vote, true
				default:
					drained = true
				}
			}
			for i, ok := range received {
				if !ok {
					votes[i] = Vote{Err: voteTimeoutError(replicas[i])}
				}
			}
			pending = 0
		}
	}

	for _, vote := range votes {
		if errors.Is(vote.Err, store.ErrTimeout) {
			voteTimeouts.Inc()
		}
	}
	return votes
}

// requestVote asks one replica, retrying network failures until ctx ends.
func (c *Coordinator) requestVote(ctx context.Context, slave SlaveInfo, op Operation) Vote {
	backoff := c.backoff
	for {
		vote, err := c.client.Prepare(ctx, slave, op)
		switch {
		case err == nil:
			return vote
		case ctx.Err() != nil || errors.Is(err, store.ErrTimeout):
			return Vote{Err: voteTimeoutError(slave)}
		case !errors.Is(err, store.ErrNetwork):
			return Vote{Err: err}
		}

		log.Debugf("op %d: slave %d unreachable, retrying: %v", op.OpID, slave.SlaveID, err)
		if !sleepCtx(ctx, backoff) {
			return Vote{Err: voteTimeoutError(slave)}
		}
		backoff = nextBackoff(backoff)
	}
}

func voteTimeoutError(slave SlaveInfo) error {
	return store.NewError(store.RetCTimeout,
		fmt.Sprintf("Timeout Error: SlaveServer %d has timed out during the first phase of 2PC", slave.SlaveID))
}

// --------------------------------------------------------------------------
// Phase 2: Decision
// --------------------------------------------------------------------------

// broadcastDecision delivers the decision to every replica in parallel.
// The returned slice holds the error of each replica, nil for an acknowledgement.
func (c *Coordinator) broadcastDecision(ctx context.Context, replicas []SlaveInfo, opID uint64, commit bool) []error {
	errs := make([]error, len(replicas))
	var wg sync.WaitGroup
	for i, slave := range replicas {
		wg.Add(1)
		go func(i int, slave SlaveInfo) {
			defer wg.Done()
			errs[i] = c.sendDecision(ctx, slave, opID, commit)
		}(i, slave)
	}
	wg.Wait()
	return errs
}

// sendDecision retries on network errors and timeouts until the replica
// answers or ctx ends. Each attempt is bounded by c.timeout.
func (c *Coordinator) sendDecision(ctx context.Context, slave SlaveInfo, opID uint64, commit bool) error {
	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.client.Decide(attemptCtx, slave, opID, commit)
		cancel()

		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNetwork) && !errors.Is(err, store.ErrTimeout) {
			return err
		}

		decisionRetries.Inc()
		log.Warningf("op %d: decision not delivered to slave %d (attempt %d): %v", opID, slave.SlaveID, attempt, err)
		if ctx.Err() != nil || !sleepCtx(ctx, backoff) {
			return store.NewError(store.RetCTimeout,
				fmt.Sprintf("decision for operation %d was not delivered to SlaveServer %d: %v", opID, slave.SlaveID, ctx.Err()))
		}
		backoff = nextBackoff(backoff)
	}
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Get returns the value for key from the master cache, the primary or the
// secondary replica, in that order. Only if all of them fail an error naming
// every replica is returned.
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, error) {
	if value, err := c.cache.Get(key); err == nil {
		readsFromCache.Inc()
		return value, nil
	}

	primary, secondary, err := c.ring.Replicas(key)
	if err != nil {
		readsFailed.Inc()
		return nil, err
	}
	replicas := []SlaveInfo{primary}
	if secondary.SlaveID != primary.SlaveID {
		replicas = append(replicas, secondary)
	}

	generation := c.generation.Load()
	var errs []*ReplicaError
	for i, slave := range replicas {
		value, err := c.readFrom(ctx, slave, key)
		if err != nil {
			log.Debugf("read of %q from slave %d failed: %v", key, slave.SlaveID, err)
			errs = append(errs, &ReplicaError{SlaveID: slave.SlaveID, Err: err})
			continue
		}

		if i == 0 {
			readsFromPrimary.Inc()
		} else {
			readsFromSecondary.Inc()
		}
		if c.generation.Load() == generation {
			if _, err := c.cache.Put(key, value); err != nil {
				log.Warningf("failed to update master cache for %q: %v", key, err)
			}
		}
		return value, nil
	}

	readsFailed.Inc()
	return nil, compositeError(errs)
}

func (c *Coordinator) readFrom(ctx context.Context, slave SlaveInfo, key string) ([]byte, error) {
	readCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	value, err := c.client.Get(readCtx, slave, key)
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, store.NewError(store.RetCNotFound, "Does not exist")
	}
	return value, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// sleepCtx waits for d plus up to 10% jitter. It returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if jitter := int64(d) / 10; jitter > 0 {
		d += time.Duration(rand.Int63n(2*jitter) - jitter)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	return min(d*2, maxRetryBackoff)
}
