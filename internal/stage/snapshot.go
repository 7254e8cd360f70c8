package stage

import "footlights/stage/internal/proto"

// clearWaiter counts down pending teardowns during a recovery clear.
type clearWaiter struct {
	remaining int
	done      func()
}

// StageActive reports whether any insert is live. Resync responder policy
// keys off this: a client with an empty stage has nothing worth pushing.
func (s *Session) StageActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserts) > 0
}

// SnapshotInserts captures the full replicated state of every live insert
// in bar order. Inserts mid-exit are excluded.
func (s *Session) SnapshotInserts() []proto.InsertState {
	order := s.bar.Order()
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]proto.InsertState, 0, len(order))
	for i, id := range order {
		ins, ok := s.inserts[id]
		if !ok || ins.deleting {
			continue
		}
		states = append(states, proto.InsertState{
			InsertID: id,
			Position: ins.position(),
			Emotions: ins.emotions(),
			SortIdx:  i,
		})
	}
	return states
}

// ClearAllInserts removes every insert through the normal exit path and
// invokes done once the last teardown completes. An empty stage completes
// immediately. Used by the resync coordinator's clearing phase.
func (s *Session) ClearAllInserts(done func()) {
	s.mu.Lock()
	pending := len(s.inserts)
	if pending == 0 {
		s.mu.Unlock()
		if done != nil {
			go done()
		}
		return
	}
	ids := make([]string, 0, pending)
	for id, ins := range s.inserts {
		if !ins.deleting {
			ids = append(ids, id)
		}
	}
	s.clearWait = &clearWaiter{remaining: pending, done: done}
	s.mu.Unlock()

	for _, id := range ids {
		s.RemoveInsert(id, true)
	}
}

// ApplyInsertState snaps one insert onto its snapshot: emote and text
// overrides first, then the exact position.
func (s *Session) ApplyInsertState(st proto.InsertState) {
	s.SetEmote(st.InsertID, st.Emotions, true)
	s.ApplyPositionUpdate(st.InsertID, st.Position)
	s.mu.Lock()
	if ins, ok := s.inserts[st.InsertID]; ok {
		ins.RenderOrder = st.SortIdx
	}
	s.mu.Unlock()
}
