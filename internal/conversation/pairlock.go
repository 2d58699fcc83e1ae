package conversation

import (
	"hash/fnv"
	"sync"
)

// pairLocks stripes mutual exclusion for conversation creation by canonical
// pair. The critical section is keyed by the pair, not global, so unrelated
// pairs never contend. The database unique index remains the final
// authority for multi-node deployments.
type pairLocks struct {
	stripes []sync.Mutex
}

func newPairLocks(n int) *pairLocks {
	return &pairLocks{stripes: make([]sync.Mutex, n)}
}

func (l *pairLocks) lock(p Pair) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(p.Key()))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m
}
