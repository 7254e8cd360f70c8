package host

import (
	"sync"
	"time"

	"footlights/stage/internal/proto"
)

// MemoryDirectory is a map-backed actor directory.
type MemoryDirectory struct {
	mu     sync.RWMutex
	actors map[string]Actor
}

func NewMemoryDirectory(actors ...Actor) *MemoryDirectory {
	d := &MemoryDirectory{actors: make(map[string]Actor, len(actors))}
	for _, actor := range actors {
		d.actors[actor.ID] = actor
	}
	return d
}

func (d *MemoryDirectory) Put(actor Actor) {
	d.mu.Lock()
	d.actors[actor.ID] = actor
	d.mu.Unlock()
}

func (d *MemoryDirectory) Remove(id string) {
	d.mu.Lock()
	delete(d.actors, id)
	d.mu.Unlock()
}

func (d *MemoryDirectory) Actor(id string) (Actor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	actor, ok := d.actors[id]
	return actor, ok
}

// StaticIdentity is a fixed user identity.
type StaticIdentity struct {
	ID string
	GM bool
}

func (s StaticIdentity) UserID() string { return s.ID }
func (s StaticIdentity) IsGM() bool     { return s.GM }

// MemoryNotifier records notices for assertions.
type MemoryNotifier struct {
	mu       sync.Mutex
	Infos    []string
	Warnings []string
}

func (n *MemoryNotifier) Info(msg string) {
	n.mu.Lock()
	n.Infos = append(n.Infos, msg)
	n.mu.Unlock()
}

func (n *MemoryNotifier) Warn(msg string) {
	n.mu.Lock()
	n.Warnings = append(n.Warnings, msg)
	n.mu.Unlock()
}

func (n *MemoryNotifier) WarningCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Warnings)
}

// MemorySettings records persisted text settings keyed by actor id.
type MemorySettings struct {
	mu     sync.Mutex
	Saved  map[string]TextSettings
	Emotes map[string]string
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{
		Saved:  make(map[string]TextSettings),
		Emotes: make(map[string]string),
	}
}

func (s *MemorySettings) SaveTextSettings(actorID string, emote string, settings TextSettings) error {
	s.mu.Lock()
	s.Saved[actorID] = settings
	s.Emotes[actorID] = emote
	s.mu.Unlock()
	return nil
}

// StubLoader resolves every path to itself unless told to fail. An
// optional delay simulates slow asset fetches.
type StubLoader struct {
	mu    sync.Mutex
	Fail  map[string]error
	Delay time.Duration
	loads []string
}

func NewStubLoader() *StubLoader {
	return &StubLoader{Fail: make(map[string]error)}
}

func (l *StubLoader) Load(path string) (string, error) {
	l.mu.Lock()
	l.loads = append(l.loads, path)
	err := l.Fail[path]
	delay := l.Delay
	l.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func (l *StubLoader) Loads() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := make([]string, len(l.loads))
	copy(copied, l.loads)
	return copied
}

// LoopbackBus is an in-process pub-sub fabric: every endpoint's broadcast
// is delivered synchronously to all other endpoints. Used by multi-client
// tests and the demo.
type LoopbackBus struct {
	mu        sync.Mutex
	endpoints map[string]*LoopbackEndpoint
}

func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{endpoints: make(map[string]*LoopbackEndpoint)}
}

// Endpoint registers a transport for userID, replacing any previous one.
func (b *LoopbackBus) Endpoint(userID string) *LoopbackEndpoint {
	ep := &LoopbackEndpoint{bus: b, userID: userID}
	b.mu.Lock()
	b.endpoints[userID] = ep
	b.mu.Unlock()
	return ep
}

func (b *LoopbackBus) deliver(from string, env proto.Envelope) {
	b.mu.Lock()
	targets := make([]*LoopbackEndpoint, 0, len(b.endpoints))
	for id, ep := range b.endpoints {
		if id == from {
			continue
		}
		targets = append(targets, ep)
	}
	b.mu.Unlock()

	for _, ep := range targets {
		ep.dispatch(env)
	}
}

// LoopbackEndpoint implements Transport over the in-process bus.
type LoopbackEndpoint struct {
	bus     *LoopbackBus
	userID  string
	mu      sync.Mutex
	handler func(env proto.Envelope)
	closed  bool
}

func (ep *LoopbackEndpoint) Broadcast(env proto.Envelope) error {
	ep.mu.Lock()
	closed := ep.closed
	ep.mu.Unlock()
	if closed {
		return nil
	}
	env.SenderID = ep.userID
	ep.bus.deliver(ep.userID, env)
	return nil
}

func (ep *LoopbackEndpoint) SetHandler(fn func(env proto.Envelope)) {
	ep.mu.Lock()
	ep.handler = fn
	ep.mu.Unlock()
}

func (ep *LoopbackEndpoint) dispatch(env proto.Envelope) {
	ep.mu.Lock()
	fn := ep.handler
	closed := ep.closed
	ep.mu.Unlock()
	if fn != nil && !closed {
		fn(env)
	}
}

func (ep *LoopbackEndpoint) Close() error {
	ep.mu.Lock()
	ep.closed = true
	ep.mu.Unlock()
	ep.bus.mu.Lock()
	if ep.bus.endpoints[ep.userID] == ep {
		delete(ep.bus.endpoints, ep.userID)
	}
	ep.bus.mu.Unlock()
	return nil
}
