// Package peersync replicates one client's stage over the broadcast
// transport and recovers a desynced stage from its peers. There is no
// central authority: every client applies every peer's events and any
// client can answer a resync request.
package peersync

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"footlights/stage/internal/host"
	"footlights/stage/internal/proto"
	"footlights/stage/internal/stage"
	"footlights/stage/internal/telemetry"
	"footlights/stage/logging"
	protolog "footlights/stage/logging/protocol"
)

type Config struct {
	// TypingRate throttles outbound typing events. Inbound events are
	// never throttled; peers rely on them for indicator liveness.
	TypingRate  rate.Limit
	TypingBurst int

	// ResyncTimeout bounds how long a request waits for any responder.
	ResyncTimeout time.Duration
	// ClearSettle bounds the clearing phase when teardown completion
	// does not arrive.
	ClearSettle time.Duration
	// PositionDelay separates injection from exact positioning so the
	// injected inserts' assets can land first.
	PositionDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		TypingRate:    rate.Every(800 * time.Millisecond),
		TypingBurst:   1,
		ResyncTimeout: 3 * time.Second,
		ClearSettle:   1600 * time.Millisecond,
		PositionDelay: 1000 * time.Millisecond,
	}
}

// Deps are the protocol's collaborators.
type Deps struct {
	Session   *stage.Session
	Transport host.Transport
	Identity  host.Identity
	Directory host.Directory
	Loader    host.AssetLoader
	Notifier  host.Notifier
	Publisher logging.Publisher
	Logger    telemetry.Logger
}

// Protocol bridges the local session and the peer transport in both
// directions. It implements stage.Broadcaster for the outbound side.
type Protocol struct {
	cfg     Config
	deps    Deps
	limiter *rate.Limiter
	resync  *Resync
}

func New(cfg Config, deps Deps) *Protocol {
	if cfg.ResyncTimeout <= 0 {
		cfg = DefaultConfig()
	}
	p := &Protocol{
		cfg:     cfg,
		deps:    deps,
		limiter: rate.NewLimiter(cfg.TypingRate, cfg.TypingBurst),
	}
	p.resync = newResync(p)
	deps.Session.SetBroadcaster(p)
	deps.Transport.SetHandler(p.handle)
	return p
}

// Resync exposes the recovery coordinator.
func (p *Protocol) Resync() *Resync { return p.resync }

// SceneChanged implements stage.Broadcaster.
func (p *Protocol) SceneChanged(ev proto.SceneEvent) {
	env, err := proto.SceneEnvelope(p.userID(), ev)
	if err != nil {
		p.logf("encode scene %s: %v", ev.Subtype(), err)
		return
	}
	p.send(env)
}

// TypingChanged implements stage.Broadcaster. Outbound typing is throttled;
// dropped ticks are fine because the next one refreshes the peer timer.
func (p *Protocol) TypingChanged(t proto.Typing) {
	if !p.limiter.Allow() {
		return
	}
	env, err := proto.NewEnvelope(p.userID(), proto.TypeTypingEvent, "", t)
	if err != nil {
		p.logf("encode typing: %v", err)
		return
	}
	p.send(env)
}

func (p *Protocol) send(env proto.Envelope) {
	if err := p.deps.Transport.Broadcast(env); err != nil {
		p.logf("broadcast %s/%s: %v", env.Type, env.Subtype, err)
	}
}

func (p *Protocol) userID() string {
	if p.deps.Identity == nil {
		return ""
	}
	return p.deps.Identity.UserID()
}

func (p *Protocol) logf(format string, args ...any) {
	if p.deps.Logger != nil {
		p.deps.Logger.Printf(format, args...)
	}
}

func (p *Protocol) sender(env proto.Envelope) logging.EntityRef {
	return logging.EntityRef{ID: env.SenderID, Kind: logging.EntityKindPeer}
}

// handle dispatches one inbound envelope. Every mutation goes through the
// session with remote=true so nothing echoes back out.
func (p *Protocol) handle(env proto.Envelope) {
	switch env.Type {
	case proto.TypeSceneEvent:
		p.handleScene(env)
	case proto.TypeTypingEvent:
		p.handleTyping(env)
	case proto.TypeResyncEvent:
		p.resync.handleResponse(env)
	case proto.TypeReqResync:
		p.resync.handleRequest(env)
	default:
		p.drop(env, "unknown_type")
	}
}

func (p *Protocol) handleScene(env proto.Envelope) {
	ev, err := proto.DecodeScene(env)
	if err != nil {
		p.drop(env, err.Error())
		return
	}

	session := p.deps.Session
	switch ev := ev.(type) {
	case proto.EnterScene:
		session.InjectInsert(stage.InjectArgs{ID: ev.InsertID, IsLeft: ev.IsLeft, Emotions: ev.Emotions}, true)
	case proto.ExitScene:
		session.RemoveInsert(ev.InsertID, true)
	case proto.PositionUpdate:
		session.ApplyPositionUpdate(ev.InsertID, ev.Position)
	case proto.Push:
		session.PushInsert(ev.InsertID, ev.ToFront, true)
	case proto.Swap:
		session.SwapInserts(ev.InsertID1, ev.InsertID2, true)
	case proto.Move:
		session.MoveInsert(ev.InsertID1, ev.InsertID2, true)
	case proto.Emote:
		session.SetEmote(ev.InsertID, ev.Emotions, true)
	case proto.AddTexture:
		session.AddTextureOp(ev, true)
	case proto.AddAllTextures:
		session.AddAllTexturesOp(ev, true)
	case proto.StageActor:
		session.StageActorOp(ev.InsertID, true)
	case proto.Narrator:
		session.SetNarrator(ev.Active, true)
	case proto.DecayText:
		session.DecayTextOp(ev.InsertID, true)
	case proto.RenderInsert:
		session.RenderInsertOp(ev.InsertID, true)
	default:
		p.drop(env, "unhandled_subtype")
		return
	}

	protolog.Applied(context.Background(), p.deps.Publisher, session.Frame(), p.sender(env),
		protolog.EnvelopePayload{Type: string(env.Type), Subtype: env.Subtype})
}

func (p *Protocol) handleTyping(env proto.Envelope) {
	var t proto.Typing
	if err := env.DecodeData(&t); err != nil {
		p.drop(env, err.Error())
		return
	}
	p.deps.Session.SetUserTyping(env.SenderID, t)
	// A peer's typing event is also the freshest view of their insert's
	// presentation state.
	p.deps.Session.SetEmote(t.InsertID, t.Emotions, true)
}

// MessageSent tells the protocol the local user sent their composed
// message: the delayed emote flushes and peers drop our typing indicator.
func (p *Protocol) MessageSent(insertID string) {
	p.deps.Session.FlushEmote(insertID)
	p.deps.Session.ClearUserTyping(p.userID())
}

func (p *Protocol) drop(env proto.Envelope, reason string) {
	protolog.Dropped(context.Background(), p.deps.Publisher, p.deps.Session.Frame(), p.sender(env),
		protolog.EnvelopePayload{Type: string(env.Type), Subtype: env.Subtype, Reason: reason})
}

// Close detaches the protocol from the transport.
func (p *Protocol) Close() {
	p.deps.Transport.SetHandler(nil)
	p.resync.close()
}

var _ stage.Broadcaster = (*Protocol)(nil)
