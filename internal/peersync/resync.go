package peersync

import (
	"context"
	"sort"
	"sync"
	"time"

	"footlights/stage/internal/proto"
	"footlights/stage/internal/stage"
	"footlights/stage/logging"
	protolog "footlights/stage/logging/protocol"
)

// Phase names one step of the staged recovery pipeline.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaiting
	PhaseClearing
	PhaseLoading
	PhaseInjecting
	PhasePositioning
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaiting:
		return "awaiting"
	case PhaseClearing:
		return "clearing"
	case PhaseLoading:
		return "loading"
	case PhaseInjecting:
		return "injecting"
	case PhasePositioning:
		return "positioning"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Resync coordinates full-state recovery. One request goes out, the first
// snapshot that answers wins, and every later one is ignored until the
// pipeline returns to idle.
type Resync struct {
	p *Protocol

	mu    sync.Mutex
	phase Phase
	timer *time.Timer
}

func newResync(p *Protocol) *Resync {
	return &Resync{p: p}
}

// Phase reports the coordinator's current pipeline phase.
func (r *Resync) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Resync) setPhase(phase Phase) {
	r.mu.Lock()
	r.phase = phase
	r.mu.Unlock()
}

// Request broadcasts a resync request. KindAny accepts any active peer,
// KindGM only a GM, and KindPlayers is the GM's forced push: instead of
// asking, it ships the local snapshot for every peer to adopt.
func (r *Resync) Request(kind string) {
	if kind == proto.KindPlayers {
		r.pushToPlayers()
		return
	}

	r.mu.Lock()
	if r.phase != PhaseIdle && r.phase != PhaseDone {
		r.mu.Unlock()
		return
	}
	r.phase = PhaseAwaiting
	r.timer = time.AfterFunc(r.p.cfg.ResyncTimeout, r.expire)
	r.mu.Unlock()

	env, err := proto.NewEnvelope(r.p.userID(), proto.TypeReqResync, kind, proto.ReqResyncData{})
	if err != nil {
		r.p.logf("encode reqresync: %v", err)
		r.abort()
		return
	}
	r.p.send(env)
	protolog.ResyncRequested(context.Background(), r.p.deps.Publisher, r.p.deps.Session.Frame(),
		logging.EntityRef{ID: r.p.userID(), Kind: logging.EntityKindUser},
		protolog.ResyncPayload{Kind: kind})
}

// pushToPlayers is the privileged broadcast: the GM's stage becomes
// everyone's stage, including our own (the snapshot self-applies so the
// push is provably what peers received).
func (r *Resync) pushToPlayers() {
	if r.p.deps.Identity == nil || !r.p.deps.Identity.IsGM() {
		if r.p.deps.Notifier != nil {
			r.p.deps.Notifier.Warn("Only the GM can push state to players")
		}
		return
	}
	data := proto.ReqResyncData{
		InsertData: r.p.deps.Session.SnapshotInserts(),
		Narrator:   r.p.deps.Session.NarratorActive(),
	}
	env, err := proto.NewEnvelope(r.p.userID(), proto.TypeReqResync, proto.KindPlayers, data)
	if err != nil {
		r.p.logf("encode push: %v", err)
		return
	}
	r.p.send(env)
	r.begin(proto.ResyncData{InsertData: data.InsertData, Narrator: data.Narrator})
}

func (r *Resync) expire() {
	r.mu.Lock()
	expired := r.phase == PhaseAwaiting
	if expired {
		r.phase = PhaseIdle
	}
	r.mu.Unlock()
	if expired {
		r.p.logf("resync request timed out with no responder")
	}
}

func (r *Resync) abort() {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.phase = PhaseIdle
	r.mu.Unlock()
}

func (r *Resync) close() {
	r.abort()
}

// handleRequest answers a peer's reqresync if local policy allows it.
func (r *Resync) handleRequest(env proto.Envelope) {
	session := r.p.deps.Session
	ignore := func(reason string) {
		protolog.ResyncIgnored(context.Background(), r.p.deps.Publisher, session.Frame(),
			r.p.sender(env), protolog.ResyncPayload{Kind: env.Subtype, Reason: reason})
	}

	switch env.Subtype {
	case proto.KindPlayers:
		// Forced push from a GM: adopt the attached snapshot.
		var data proto.ReqResyncData
		if err := env.DecodeData(&data); err != nil {
			r.p.drop(env, err.Error())
			return
		}
		r.begin(proto.ResyncData{InsertData: data.InsertData, Narrator: data.Narrator})
	case proto.KindGM:
		if r.p.deps.Identity == nil || !r.p.deps.Identity.IsGM() {
			ignore("not_gm")
			return
		}
		if !session.StageActive() {
			ignore("stage_inactive")
			return
		}
		r.respond(env.SenderID, proto.ResyncFromGM)
	case proto.KindAny:
		if !session.StageActive() {
			ignore("stage_inactive")
			return
		}
		subtype := proto.ResyncFromPlayer
		if r.p.deps.Identity != nil && r.p.deps.Identity.IsGM() {
			subtype = proto.ResyncFromGM
		}
		r.respond(env.SenderID, subtype)
	default:
		r.p.drop(env, "unknown_kind")
	}
}

func (r *Resync) respond(targetID, subtype string) {
	session := r.p.deps.Session
	data := proto.ResyncData{
		TargetID:   targetID,
		InsertData: session.SnapshotInserts(),
		Narrator:   session.NarratorActive(),
	}
	env, err := proto.NewEnvelope(r.p.userID(), proto.TypeResyncEvent, subtype, data)
	if err != nil {
		r.p.logf("encode resync response: %v", err)
		return
	}
	r.p.send(env)
}

// handleResponse accepts the first snapshot answering our request. Later
// snapshots, or snapshots targeting another peer, are ignored.
func (r *Resync) handleResponse(env proto.Envelope) {
	var data proto.ResyncData
	if err := env.DecodeData(&data); err != nil {
		r.p.drop(env, err.Error())
		return
	}
	session := r.p.deps.Session
	if data.TargetID != "" && data.TargetID != r.p.userID() {
		protolog.ResyncIgnored(context.Background(), r.p.deps.Publisher, session.Frame(),
			r.p.sender(env), protolog.ResyncPayload{Kind: env.Subtype, Inserts: len(data.InsertData)})
		return
	}

	r.mu.Lock()
	first := r.phase == PhaseAwaiting
	if first {
		if r.timer != nil {
			r.timer.Stop()
		}
		r.phase = PhaseClearing
	}
	r.mu.Unlock()

	if !first {
		protolog.ResyncIgnored(context.Background(), r.p.deps.Publisher, session.Frame(),
			r.p.sender(env), protolog.ResyncPayload{Kind: env.Subtype, Inserts: len(data.InsertData)})
		return
	}
	go r.run(data)
}

// begin starts recovery for an unsolicited snapshot (the players push).
func (r *Resync) begin(data proto.ResyncData) {
	r.mu.Lock()
	busy := r.phase != PhaseIdle && r.phase != PhaseDone && r.phase != PhaseAwaiting
	if !busy {
		if r.timer != nil {
			r.timer.Stop()
		}
		r.phase = PhaseClearing
	}
	r.mu.Unlock()
	if busy {
		return
	}
	go r.run(data)
}

// run executes the recovery pipeline: clear the stage, preload every
// portrait, inject in snapshot order, then settle exact positions. Each
// waiting step is completion-driven with a configured upper bound.
func (r *Resync) run(data proto.ResyncData) {
	session := r.p.deps.Session

	r.setPhase(PhaseClearing)
	cleared := make(chan struct{})
	var once sync.Once
	session.ClearAllInserts(func() {
		once.Do(func() { close(cleared) })
	})
	select {
	case <-cleared:
	case <-time.After(r.p.cfg.ClearSettle):
	}

	r.setPhase(PhaseLoading)
	r.preload(data.InsertData)

	r.setPhase(PhaseInjecting)
	states := make([]proto.InsertState, len(data.InsertData))
	copy(states, data.InsertData)
	sort.SliceStable(states, func(i, j int) bool { return states[i].SortIdx < states[j].SortIdx })
	for _, st := range states {
		session.InjectInsert(stage.InjectArgs{ID: st.InsertID, Emotions: st.Emotions}, true)
	}

	r.setPhase(PhasePositioning)
	time.Sleep(r.p.cfg.PositionDelay)
	for _, st := range states {
		session.ApplyInsertState(st)
	}
	session.SetNarrator(data.Narrator, true)

	r.setPhase(PhaseDone)
	protolog.ResyncApplied(context.Background(), r.p.deps.Publisher, session.Frame(),
		logging.EntityRef{ID: r.p.userID(), Kind: logging.EntityKindUser},
		protolog.ResyncPayload{Inserts: len(states)})
}

// preload warms the loader cache so injection does not stagger visibly.
func (r *Resync) preload(states []proto.InsertState) {
	if r.p.deps.Loader == nil || r.p.deps.Directory == nil {
		return
	}
	var wg sync.WaitGroup
	for _, st := range states {
		actor, ok := r.p.deps.Directory.Actor(st.InsertID)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if _, err := r.p.deps.Loader.Load(path); err != nil {
				r.p.logf("preload %s: %v", path, err)
			}
		}(actor.Portrait)
	}
	wg.Wait()
}
