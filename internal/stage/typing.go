package stage

import (
	"math"
	"time"

	"footlights/stage/internal/anim"
	"footlights/stage/internal/proto"
	"footlights/stage/internal/scene"
)

// typingState tracks one user composing as one insert, with a liveness
// timer that expires stale indicators.
type typingState struct {
	userID   string
	insertID string
	emotions proto.Emotions
	timer    *time.Timer
}

const typingPulseID = "typingpulse"

// LocalTyping marks the local user as composing as insertID and forwards
// the signal to peers. Outbound rate limiting happens in the sync protocol;
// the local indicator and delayed-emote bookkeeping update every time.
func (s *Session) LocalTyping(insertID string) {
	s.mu.Lock()
	ins, ok := s.inserts[insertID]
	if !ok {
		s.mu.Unlock()
		return
	}
	emotions := ins.emotions()
	s.setTypingLocked(s.localUser(), insertID, emotions)
	caster := s.caster
	s.mu.Unlock()

	if caster != nil {
		caster.TypingChanged(proto.Typing{InsertID: insertID, Emotions: emotions})
	}
	s.stageChanged()
}

// SetUserTyping applies a peer's typing event. Unknown inserts are ignored.
func (s *Session) SetUserTyping(userID string, t proto.Typing) {
	s.mu.Lock()
	if _, ok := s.inserts[t.InsertID]; !ok {
		s.mu.Unlock()
		return
	}
	s.setTypingLocked(userID, t.InsertID, t.Emotions)
	s.mu.Unlock()
	s.stageChanged()
}

// ClearUserTyping drops a user's typing state immediately, e.g. when their
// composed message arrives ahead of the idle timer.
func (s *Session) ClearUserTyping(userID string) {
	s.mu.Lock()
	s.clearTypingLocked(userID)
	s.mu.Unlock()
	s.stageChanged()
}

// TypingUsers reports how many users are currently composing.
func (s *Session) TypingUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.typing)
}

func (s *Session) setTypingLocked(userID, insertID string, em proto.Emotions) {
	if userID == "" {
		return
	}
	if prev, ok := s.typing[userID]; ok {
		if prev.timer != nil {
			prev.timer.Stop()
		}
		delete(s.typing, userID)
		if prev.insertID != insertID {
			s.hideIndicatorLocked(prev.insertID)
		}
	}
	state := &typingState{userID: userID, insertID: insertID, emotions: em}
	state.timer = time.AfterFunc(s.cfg.TypingIdle, func() {
		s.mu.Lock()
		if s.typing[userID] == state {
			s.clearTypingLocked(userID)
		}
		s.mu.Unlock()
		s.stageChanged()
	})
	s.typing[userID] = state
	s.showIndicatorLocked(insertID)
}

func (s *Session) clearTypingLocked(userID string) {
	state, ok := s.typing[userID]
	if !ok {
		return
	}
	if state.timer != nil {
		state.timer.Stop()
	}
	delete(s.typing, userID)
	s.hideIndicatorLocked(state.insertID)
}

// typingAsLocked reports whether userID is composing as insertID.
func (s *Session) typingAsLocked(userID, insertID string) bool {
	state, ok := s.typing[userID]
	return ok && state.insertID == insertID
}

// showIndicatorLocked reveals the insert's typing indicator and starts its
// pulse. An already-visible indicator keeps its running pulse.
func (s *Session) showIndicatorLocked(insertID string) {
	ins, ok := s.inserts[insertID]
	if !ok || ins.root == nil {
		return
	}
	node := ins.root.Child(nodeTyping)
	if node == nil || node.Visible {
		return
	}
	node.Visible = true
	pulseIndicator(s.tracker, insertID, node)
}

// hideIndicatorLocked hides the indicator unless another user is still
// composing as the same insert.
func (s *Session) hideIndicatorLocked(insertID string) {
	for _, st := range s.typing {
		if st.insertID == insertID {
			return
		}
	}
	ins, ok := s.inserts[insertID]
	if !ok || ins.root == nil {
		return
	}
	node := ins.root.Child(nodeTyping)
	if node == nil || !node.Visible {
		return
	}
	node.Visible = false
	s.tracker.Remove(insertID, typingPulseID)
}

// pulseIndicator keeps the indicator breathing while visible by re-chaining
// a sine fade under a stable animation id. The completion callback runs on
// the advance path, so it must not touch the session lock.
func pulseIndicator(tr *anim.Tracker, insertID string, node *scene.Node) {
	tr.Add(insertID, typingPulseID, anim.NewTween(anim.Tween{
		Duration: 800 * time.Millisecond,
		Ease:     anim.Linear,
		Apply: func(t float64) {
			node.Alpha = 0.5 + 0.5*math.Sin(t*2*math.Pi)
		},
		OnDone: func() {
			if node.Visible {
				pulseIndicator(tr, insertID, node)
			} else {
				node.Alpha = 1
			}
		},
	}))
}
