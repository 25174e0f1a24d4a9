package memconfig

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// Compile-time check: Store implements domain.ConfigStore.
var _ domain.ConfigStore = (*Store)(nil)

// Store is an in-memory hierarchical configuration store with watch
// semantics. Paths are slash-separated ("/tenants/acme/config/engine");
// each Put or Delete is fanned out to subscribed listeners on the calling
// goroutine. It stands in for an external configuration service during
// development and in tests.
type Store struct {
	mu        sync.RWMutex
	nodes     map[string][]byte
	listeners map[int]domain.ConfigListener
	nextID    int

	readyOnce sync.Once
	ready     chan struct{}
}

// New creates an empty store. The store reports not-ready until MarkReady
// is called.
func New() *Store {
	return &Store{
		nodes:     make(map[string][]byte),
		listeners: make(map[int]domain.ConfigListener),
		ready:     make(chan struct{}),
	}
}

// MarkReady flips the store to ready, releasing all WaitUntilReady callers.
// Safe to call more than once.
func (s *Store) MarkReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// WaitUntilReady blocks until MarkReady has been called or the context
// expires.
func (s *Store) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Put stores data at path and notifies listeners. A path seen for the
// first time fires an added notification, an existing path an updated one.
func (s *Store) Put(path string, data []byte) {
	path = normalize(path)

	s.mu.Lock()
	_, existed := s.nodes[path]
	s.nodes[path] = data
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, l := range listeners {
		if existed {
			l.OnConfigurationUpdated(path, data)
		} else {
			l.OnConfigurationAdded(path, data)
		}
	}
}

// Get returns the data stored at path.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.nodes[normalize(path)]
	return data, ok
}

// Delete removes path and notifies listeners. Deleting an absent path is
// a no-op.
func (s *Store) Delete(path string) {
	path = normalize(path)

	s.mu.Lock()
	_, existed := s.nodes[path]
	delete(s.nodes, path)
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if !existed {
		return
	}
	for _, l := range listeners {
		l.OnConfigurationDeleted(path)
	}
}

// List returns the sorted distinct child names directly under pathPrefix.
// A node at "/tenants/acme/config/engine" contributes "acme" when listing
// "/tenants".
func (s *Store) List(_ context.Context, pathPrefix string) ([]string, error) {
	prefix := normalize(pathPrefix) + "/"

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for path := range s.nodes {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		child, _, _ := strings.Cut(rest, "/")
		seen[child] = struct{}{}
	}

	children := make([]string, 0, len(seen))
	for child := range seen {
		children = append(children, child)
	}
	sort.Strings(children)
	return children, nil
}

// Subscribe registers a listener for change notifications. The returned
// function cancels the subscription; calling it more than once is safe.
func (s *Store) Subscribe(listener domain.ConfigListener) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// snapshotListeners must be called with s.mu held.
func (s *Store) snapshotListeners() []domain.ConfigListener {
	out := make([]domain.ConfigListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func normalize(path string) string {
	return strings.TrimRight(path, "/")
}
