package corpus

import (
	"sync"

	"github.com/jonathan/news-ingest/internal/types"
)

// KeyedMutex serializes work per article key. Entries are dropped once unused.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[types.ArticleKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until the key is free and returns its unlock function.
func (k *KeyedMutex) Lock(key types.ArticleKey) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[types.ArticleKey]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
