package pfand

import (
	"sync"

	"github.com/warp/pfand-engine/generic"
)

// AccountLocks is a keyed mutex: one lock per account, created on first use
// and dropped once nobody holds or waits for it. Processors sharing an
// AccountLocks never interleave a read-validate-append for the same account.
// Different accounts never contend.
type AccountLocks struct {
	mapMu sync.Mutex
	muMap map[generic.AccountID]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int // holders plus waiters, guarded by mapMu
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{muMap: make(map[generic.AccountID]*accountLock)}
}

func (l *AccountLocks) acquire(accountID generic.AccountID) *accountLock {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	lock, exists := l.muMap[accountID]
	if !exists {
		lock = &accountLock{}
		l.muMap[accountID] = lock
	}
	lock.refs++
	return lock
}

func (l *AccountLocks) release(accountID generic.AccountID, lock *accountLock) {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.muMap, accountID)
	}
}

// Lock acquires the account lock and returns its release func.
func (l *AccountLocks) Lock(accountID generic.AccountID) (unlock func()) {
	lock := l.acquire(accountID)
	lock.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.mu.Unlock()
			l.release(accountID, lock)
		})
	}
}

// Len reports how many accounts currently have a lock entry.
func (l *AccountLocks) Len() int {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	return len(l.muMap)
}
