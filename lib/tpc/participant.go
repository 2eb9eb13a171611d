package tpc

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/lib/wal"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("tpc")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Operation is a write request tagged with the id the coordinator assigned.
type Operation struct {
	OpID    uint64
	Request wal.RequestType
	Key     string
	Value   []byte
}

// Validate checks the operation against the size limits.
func (op Operation) Validate() error {
	switch op.Request {
	case wal.RequestTPut:
		if err := store.ValidateKey(op.Key); err != nil {
			return err
		}
		return store.ValidateValue(op.Value)
	case wal.RequestTDelete:
		return store.ValidateKey(op.Key)
	default:
		return store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unsupported request %s", op.Request))
	}
}

// Vote is a participant's answer to a prepare request.
type Vote struct {
	Ready   bool  // Ready to commit
	Existed bool  // The key was present on the replica before the operation
	Err     error // Reason for an abort vote
}

// OpState is the protocol state of an operation on one participant.
type OpState uint8

const (
	OpStateNone      OpState = iota // Nothing logged yet.
	OpStateReady                    // Ready logged, waiting for the decision.
	OpStateCommitted                // Commit logged.
	OpStateAborted                  // Abort logged.
)

func (s OpState) String() string {
	switch s {
	case OpStateNone:
		return "none"
	case OpStateReady:
		return "ready"
	case OpStateCommitted:
		return "committed"
	case OpStateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Participant
// --------------------------------------------------------------------------

// Participant runs the slave side of the protocol: it logs every step to the
// write-ahead log before answering and applies committed operations to its node.
type Participant struct {
	slaveID uint64
	node    store.IStore
	log     *wal.Log
	locks   *xsync.MapOf[uint64, *opLock]
}

// opLock is the lock of one operation, it is removed once nobody holds or waits for it
type opLock struct {
	mu   sync.Mutex
	refs int // guarded by the map bucket (Compute)
}

// NewParticipant creates a participant for the given node and log.
func NewParticipant(slaveID uint64, node store.IStore, l *wal.Log) *Participant {
	return &Participant{
		slaveID: slaveID,
		node:    node,
		log:     l,
		locks:   xsync.NewMapOf[uint64, *opLock](),
	}
}

// SlaveID returns the id of the slave this participant runs on.
func (p *Participant) SlaveID() uint64 {
	return p.slaveID
}

// Recover replays the log into the node. It must run before any request is served.
func (p *Participant) Recover() wal.RebuildStats {
	if p.log.IsEmpty() {
		log.Infof("slave %d: log is empty, nothing to recover", p.slaveID)
		return wal.RebuildStats{}
	}
	stats := p.log.Rebuild(p.node)
	replayedEntries.Add(stats.Committed)
	return stats
}

// lock serializes all protocol steps of one operation.
func (p *Participant) lock(opID uint64) func() {
	l, _ := p.locks.Compute(opID, func(l *opLock, loaded bool) (*opLock, bool) {
		if !loaded {
			l = &opLock{}
		}
		l.refs++
		return l, false
	})
	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		p.locks.Compute(opID, func(l *opLock, _ bool) (*opLock, bool) {
			l.refs--
			return l, l.refs == 0
		})
	}
}

// State returns the protocol state of opID as recorded in the log.
func (p *Participant) State(opID uint64) OpState {
	if outcome, ok := p.log.Outcome(opID); ok {
		if outcome == wal.EntryTCommit {
			return OpStateCommitted
		}
		return OpStateAborted
	}
	if _, ok := p.log.FindReady(opID); ok {
		return OpStateReady
	}
	return OpStateNone
}

// Prepare handles the first phase. Invalid operations are refused without
// touching the log. Otherwise the ready entry is durable before the vote is returned.
func (p *Participant) Prepare(op Operation) Vote {
	if err := op.Validate(); err != nil {
		log.Debugf("slave %d: refusing op %d: %v", p.slaveID, op.OpID, err)
		votesAbort.Inc()
		return Vote{Err: err}
	}

	unlock := p.lock(op.OpID)
	defer unlock()

	ready, found := p.log.FindReady(op.OpID)
	state := p.State(op.OpID)
	if found && !sameOperation(ready, op) {
		// the id now names another operation, its earlier round is history
		log.Warningf("slave %d: op %d reused for %s %q (was %s %q in state %s)",
			p.slaveID, op.OpID, op.Request, op.Key, ready.Request, ready.Key, state)
		state = OpStateNone
	}

	switch state {
	case OpStateCommitted:
		votesReady.Inc()
		return Vote{Ready: true, Existed: ready.Existed}
	case OpStateAborted:
		votesAbort.Inc()
		return Vote{Err: store.NewError(store.RetCInvalidOperation, fmt.Sprintf("operation %d was already aborted", op.OpID))}
	case OpStateReady:
		return castVote(ready)
	}

	existed, err := p.node.Has(op.Key)
	if err != nil {
		votesAbort.Inc()
		return Vote{Err: err}
	}

	entry := wal.Entry{
		Type:    wal.EntryTReady,
		Request: op.Request,
		OpID:    op.OpID,
		Key:     op.Key,
		Value:   op.Value,
		Existed: existed,
	}
	if err := p.log.Append(entry); err != nil {
		log.Errorf("slave %d: failed to log ready for op %d: %v", p.slaveID, op.OpID, err)
		votesAbort.Inc()
		return Vote{Err: err}
	}
	return castVote(entry)
}

// castVote returns the vote for a logged ready entry. Repeated prepares get the same answer.
func castVote(ready wal.Entry) Vote {
	if ready.Request == wal.RequestTDelete && !ready.Existed {
		votesAbort.Inc()
		return Vote{Err: store.NewError(store.RetCNotFound, "Does not exist")}
	}
	votesReady.Inc()
	return Vote{Ready: true, Existed: ready.Existed}
}

func sameOperation(ready wal.Entry, op Operation) bool {
	if ready.Request != op.Request || ready.Key != op.Key {
		return false
	}
	return op.Request != wal.RequestTPut || bytes.Equal(ready.Value, op.Value)
}

// Commit handles a commit decision. It returns ErrUnknownOperation when no
// ready entry exists for opID, the caller must not reply in that case.
// Repeated commits are acknowledged without applying the operation again.
func (p *Participant) Commit(opID uint64) error {
	unlock := p.lock(opID)
	defer unlock()

	switch p.State(opID) {
	case OpStateCommitted:
		return nil
	case OpStateAborted:
		return store.NewError(store.RetCInvalidOperation, fmt.Sprintf("operation %d was already aborted", opID))
	case OpStateNone:
		log.Warningf("slave %d: ignoring commit for unknown op %d", p.slaveID, opID)
		commitsIgnored.Inc()
		return ErrUnknownOperation
	}

	ready, _ := p.log.FindReady(opID)
	if err := wal.Apply(p.node, ready); err != nil {
		// the decision is final, the failure is only reported
		log.Errorf("slave %d: failed to apply op %d: %v", p.slaveID, opID, err)
	}

	err := wal.RetryStorage(func() error {
		return p.log.Append(wal.Entry{Type: wal.EntryTCommit, OpID: opID})
	})
	if err != nil {
		return err
	}

	commitsApplied.Inc()
	log.Debugf("slave %d: committed op %d (%s %q)", p.slaveID, opID, ready.Request, ready.Key)
	return nil
}

// Abort handles an abort decision. The node is not touched.
func (p *Participant) Abort(opID uint64) error {
	unlock := p.lock(opID)
	defer unlock()

	switch p.State(opID) {
	case OpStateAborted:
		return nil
	case OpStateCommitted:
		return store.NewError(store.RetCInvalidOperation, fmt.Sprintf("operation %d was already committed", opID))
	}

	err := wal.RetryStorage(func() error {
		return p.log.Append(wal.Entry{Type: wal.EntryTAbort, OpID: opID})
	})
	if err != nil {
		return err
	}

	abortsLogged.Inc()
	log.Debugf("slave %d: aborted op %d", p.slaveID, opID)
	return nil
}

// Get serves a read directly from the node.
func (p *Participant) Get(key string) ([]byte, error) {
	return p.node.Get(key)
}
