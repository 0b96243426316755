// Package session holds the ephemeral Search Session records that tie a
// user's retrieval results to the feedback that may arrive for them
// later, keyed by a short id derived from the submitted photo's
// transport handle.
package session

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// DefaultTTL is how long a Search Session survives without being claimed
// by feedback.
const DefaultTTL = 30 * time.Minute

// Result is one scored item returned to the user as part of a search.
type Result struct {
	ItemID     string
	Similarity float64
}

// Session is the ephemeral record created after a successful retrieval,
// looked up again when feedback for it arrives.
type Session struct {
	ShortID         string
	UserID          string
	PhotoFingerprint string
	Results         []Result
	SearchMethod    string
	Department      string
	CreatedAt       time.Time
}

// Store is a process-local, TTL-backed map of Search Sessions keyed by
// ShortID. Feedback events for a given ShortID are serialized through a
// per-key mutex so a mark-correct and a mark-incorrect racing on the same
// session can't interleave.
type Store struct {
	c       *cache.Cache
	keyLock *keyedMutex
}

// NewStore creates a Store whose entries expire after ttl, swept by a
// background goroutine that runs at the same interval.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		c:       cache.New(ttl, ttl),
		keyLock: newKeyedMutex(),
	}
}

// ShortID derives the 8-hex-character key used to address a Search
// Session, truncated from the MD5 digest of the photo's transport
// handle. Collisions are tolerated: a new session silently overwrites
// whatever occupied the same short id.
func ShortID(imageHandle string) string {
	sum := md5.Sum([]byte(imageHandle))
	return hex.EncodeToString(sum[:])[:8]
}

// Put registers a Search Session, overwriting any existing entry with the
// same ShortID.
func (s *Store) Put(sess Session) {
	s.c.SetDefault(sess.ShortID, sess)
}

// Get looks up a Search Session by short id. ok is false if the session
// was never registered or has since expired, in which case callers
// should treat incoming feedback as orphaned.
func (s *Store) Get(shortID string) (Session, bool) {
	v, ok := s.c.Get(shortID)
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

// Lock serializes feedback writers for a given short id: the returned
// unlock func must be called to release it. Use via:
//
//	unlock := store.Lock(shortID)
//	defer unlock()
func (s *Store) Lock(shortID string) (unlock func()) {
	return s.keyLock.lock(shortID)
}

// keyedMutex hands out a distinct lock per key without pre-registering
// every possible key, using a small reference-counted map of mutexes.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	rm, ok := k.locks[key]
	if !ok {
		rm = &refMutex{}
		k.locks[key] = rm
	}
	rm.refs++
	k.mu.Unlock()

	rm.Lock()

	return func() {
		rm.Unlock()

		k.mu.Lock()
		rm.refs--
		if rm.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
