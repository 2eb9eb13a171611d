package tpc

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/ValentinKolb/tpcKV/lib/db/util"
	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Slave Information
// --------------------------------------------------------------------------

// SlaveInfo identifies a slave server and where to reach it.
type SlaveInfo struct {
	SlaveID  uint64
	HostName string
	Port     int
}

// ParseSlaveInfo parses the registration format "<slaveID>@<host>:<port>".
func ParseSlaveInfo(info string) (SlaveInfo, error) {
	fail := func(reason string) (SlaveInfo, error) {
		return SlaveInfo{}, store.NewError(store.RetCRegistration,
			fmt.Sprintf("Registration Error: Received unparseable slave information (%s): %q", reason, info))
	}

	idStr, hostPort, ok := strings.Cut(info, "@")
	if !ok {
		return fail("missing '@'")
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return fail("slave id is not a number")
	}

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return fail("expected host:port")
	}
	if host == "" {
		return fail("empty host")
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fail("invalid port")
	}

	return SlaveInfo{SlaveID: id, HostName: host, Port: port}, nil
}

// Address returns the network address of the slave.
func (s SlaveInfo) Address() string {
	return net.JoinHostPort(s.HostName, strconv.Itoa(s.Port))
}

// String returns the registration format of the slave.
func (s SlaveInfo) String() string {
	return fmt.Sprintf("%d@%s", s.SlaveID, s.Address())
}

// --------------------------------------------------------------------------
// Ring
// --------------------------------------------------------------------------

// ringItem orders slaves by their id on the ring.
type ringItem SlaveInfo

func (a ringItem) Less(b btree.Item) bool {
	return a.SlaveID < b.(ringItem).SlaveID
}

// Ring is the ordered set of registered slaves. Keys are placed with
// util.RingHash, the slave with the smallest id not below the hash is the
// primary replica and its successor on the ring the secondary.
type Ring struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// NewRing creates an empty ring.
func NewRing() *Ring {
	return &Ring{tree: btree.New(8)}
}

// Add inserts a slave. A slave with the same id is replaced, replaced reports
// whether that happened.
func (r *Ring) Add(slave SlaveInfo) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.ReplaceOrInsert(ringItem(slave)) != nil
}

// Register parses info and adds the slave to the ring.
func (r *Ring) Register(info string) (SlaveInfo, error) {
	slave, err := ParseSlaveInfo(info)
	if err != nil {
		return SlaveInfo{}, err
	}
	r.Add(slave)
	return slave, nil
}

// Get returns the slave with the given id.
func (r *Ring) Get(slaveID uint64) (SlaveInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item := r.tree.Get(ringItem{SlaveID: slaveID})
	if item == nil {
		return SlaveInfo{}, false
	}
	return SlaveInfo(item.(ringItem)), true
}

// Len returns the number of slaves on the ring.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Len()
}

// Slaves returns all slaves ordered by id.
func (r *Ring) Slaves() []SlaveInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slaves := make([]SlaveInfo, 0, r.tree.Len())
	r.tree.Ascend(func(i btree.Item) bool {
		slaves = append(slaves, SlaveInfo(i.(ringItem)))
		return true
	})
	return slaves
}

// FindPrimary returns the primary replica for key.
func (r *Ring) FindPrimary(key string) (SlaveInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ceiling(util.RingHash(key))
}

// FindSuccessor returns the slave following slave on the ring, wrapping around
// after the largest id. On a ring of one slave that slave is its own successor.
func (r *Ring) FindSuccessor(slave SlaveInfo) (SlaveInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var next SlaveInfo
	found := false
	r.tree.AscendGreaterOrEqual(ringItem{SlaveID: slave.SlaveID}, func(i btree.Item) bool {
		item := i.(ringItem)
		if item.SlaveID == slave.SlaveID {
			return true
		}
		next, found = SlaveInfo(item), true
		return false
	})
	if found {
		return next, true
	}
	return r.min()
}

// Replicas returns the primary and secondary replica for key. Both are the same
// slave when only one is registered.
func (r *Ring) Replicas(key string) (primary, secondary SlaveInfo, err error) {
	primary, ok := r.FindPrimary(key)
	if !ok {
		return SlaveInfo{}, SlaveInfo{}, store.NewError(store.RetCInvalidOperation, "no slave servers registered")
	}
	secondary, _ = r.FindSuccessor(primary)
	return primary, secondary, nil
}

// ceiling returns the slave with the smallest id >= hash, wrapping to the first slave.
func (r *Ring) ceiling(hash uint64) (SlaveInfo, bool) {
	var result SlaveInfo
	found := false
	r.tree.AscendGreaterOrEqual(ringItem{SlaveID: hash}, func(i btree.Item) bool {
		result, found = SlaveInfo(i.(ringItem)), true
		return false
	})
	if found {
		return result, true
	}
	return r.min()
}

func (r *Ring) min() (SlaveInfo, bool) {
	item := r.tree.Min()
	if item == nil {
		return SlaveInfo{}, false
	}
	return SlaveInfo(item.(ringItem)), true
}
