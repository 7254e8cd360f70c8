package dock

import (
	"sync"
	"time"

	"footlights/stage/internal/anim"
)

// Layout names the bar arrangement for the current box count.
type Layout int

const (
	LayoutEmpty Layout = iota
	LayoutSingle
	LayoutDual
	LayoutMulti
)

func (l Layout) String() string {
	switch l {
	case LayoutEmpty:
		return "empty"
	case LayoutSingle:
		return "single"
	case LayoutDual:
		return "dual"
	default:
		return "multi"
	}
}

// ForCount maps a box count to its layout.
func ForCount(n int) Layout {
	switch {
	case n <= 0:
		return LayoutEmpty
	case n == 1:
		return LayoutSingle
	case n == 2:
		return LayoutDual
	default:
		return LayoutMulti
	}
}

// Orientation hints where a label or exit animation should aim.
const (
	OrientLeft  = "left"
	OrientRight = "right"
)

type Config struct {
	BarWidth   float64
	DualBoxMax float64
	// Font size shrinks from Max toward Min as the bar fills.
	MinFontSize  float64
	MaxFontSize  float64
	FontStep     float64
	ReorderDelay time.Duration
	// SingleGrowth is the width transition when the first box docks.
	SingleGrowth time.Duration
}

func DefaultConfig() Config {
	return Config{
		BarWidth:     1200,
		DualBoxMax:   650,
		MinFontSize:  16,
		MaxFontSize:  28,
		FontStep:     3,
		ReorderDelay: 50 * time.Millisecond,
		SingleGrowth: 250 * time.Millisecond,
	}
}

// Box is one insert's docked text box. Its bar-local geometry is recomputed
// on every reorder and mutated by the growth tween, so all access goes
// through the manager's mutex.
type Box struct {
	InsertID string

	mu    *sync.Mutex
	x     float64
	width float64
}

// X reports the box's bar-local position.
func (b *Box) X() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.x
}

// Width reports the box's current width.
func (b *Box) Width() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width
}

func (b *Box) setWidth(w float64) {
	b.mu.Lock()
	b.width = w
	b.mu.Unlock()
}

// Placement is the per-insert outcome of a reorder pass.
type Placement struct {
	InsertID        string
	X               float64
	Width           float64
	ExitOrientation string
	NameOrientation string
	FontSize        float64
}

// Manager arranges docked text boxes into the empty/single/dual/multi bar
// layouts and coalesces reorder requests.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	boxes     []*Box
	tracker   *anim.Tracker
	onReorder func([]Placement)
	pending   *time.Timer
	closed    bool
}

// trackerOwner scopes the dock's own tweens in the animation tracker.
const trackerOwner = "dock"

func NewManager(cfg Config, tracker *anim.Tracker, onReorder func([]Placement)) *Manager {
	if cfg.BarWidth <= 0 {
		cfg = DefaultConfig()
	}
	return &Manager{cfg: cfg, tracker: tracker, onReorder: onReorder}
}

// AddBox docks a new text box at the end of the bar and returns it.
// Duplicate ids return the existing box.
func (m *Manager) AddBox(insertID string) *Box {
	m.mu.Lock()
	if existing := m.boxForLocked(insertID); existing != nil {
		m.mu.Unlock()
		return existing
	}
	box := &Box{InsertID: insertID, mu: &m.mu}
	m.boxes = append(m.boxes, box)
	first := len(m.boxes) == 1
	m.mu.Unlock()

	if first && m.tracker != nil {
		m.growSingle(box)
	}
	m.RequestReorder()
	return box
}

// growSingle animates the lone box's width in on the empty -> single
// transition.
func (m *Manager) growSingle(box *Box) {
	target := m.cfg.BarWidth
	m.tracker.Add(trackerOwner, "growth:"+box.InsertID, anim.NewTween(anim.Tween{
		Duration: m.cfg.SingleGrowth,
		Ease:     anim.EaseOutQuad,
		Apply: func(t float64) {
			box.setWidth(target * t)
		},
	}))
}

// RemoveBox undocks the box for insertID. Unknown ids are a no-op.
func (m *Manager) RemoveBox(insertID string) {
	m.mu.Lock()
	for i, box := range m.boxes {
		if box.InsertID == insertID {
			m.boxes = append(m.boxes[:i], m.boxes[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.RequestReorder()
}

// SwapBoxes exchanges the bar positions of two boxes.
func (m *Manager) SwapBoxes(id1, id2 string) bool {
	m.mu.Lock()
	i1, i2 := -1, -1
	for i, box := range m.boxes {
		switch box.InsertID {
		case id1:
			i1 = i
		case id2:
			i2 = i
		}
	}
	swapped := i1 >= 0 && i2 >= 0
	if swapped {
		m.boxes[i1], m.boxes[i2] = m.boxes[i2], m.boxes[i1]
	}
	m.mu.Unlock()
	if swapped {
		m.RequestReorder()
	}
	return swapped
}

// MoveBox relocates srcID to destID's slot, shifting the boxes between.
func (m *Manager) MoveBox(destID, srcID string) bool {
	m.mu.Lock()
	src, dest := -1, -1
	for i, box := range m.boxes {
		switch box.InsertID {
		case srcID:
			src = i
		case destID:
			dest = i
		}
	}
	moved := src >= 0 && dest >= 0 && src != dest
	if moved {
		box := m.boxes[src]
		m.boxes = append(m.boxes[:src], m.boxes[src+1:]...)
		if src < dest {
			dest--
		}
		m.boxes = append(m.boxes[:dest], append([]*Box{box}, m.boxes[dest:]...)...)
	}
	m.mu.Unlock()
	if moved {
		m.RequestReorder()
	}
	return moved
}

// PushBox moves a box to the extreme front or back of the bar order.
func (m *Manager) PushBox(insertID string, toFront bool) bool {
	m.mu.Lock()
	idx := -1
	for i, box := range m.boxes {
		if box.InsertID == insertID {
			idx = i
			break
		}
	}
	pushed := idx >= 0
	if pushed {
		box := m.boxes[idx]
		m.boxes = append(m.boxes[:idx], m.boxes[idx+1:]...)
		if toFront {
			m.boxes = append([]*Box{box}, m.boxes...)
		} else {
			m.boxes = append(m.boxes, box)
		}
	}
	m.mu.Unlock()
	if pushed {
		m.RequestReorder()
	}
	return pushed
}

// Order returns insert ids in current bar order.
func (m *Manager) Order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := make([]string, len(m.boxes))
	for i, box := range m.boxes {
		order[i] = box.InsertID
	}
	return order
}

// Count reports the number of docked boxes.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boxes)
}

// Layout reports the bar layout for the current count.
func (m *Manager) Layout() Layout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ForCount(len(m.boxes))
}

// BoxFor returns the docked box for insertID, nil if absent.
func (m *Manager) BoxFor(insertID string) *Box {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boxForLocked(insertID)
}

func (m *Manager) boxForLocked(insertID string) *Box {
	for _, box := range m.boxes {
		if box.InsertID == insertID {
			return box
		}
	}
	return nil
}

// AtExtreme reports which box currently holds the front or back slot.
func (m *Manager) AtExtreme(front bool) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.boxes) == 0 {
		return "", false
	}
	if front {
		return m.boxes[0].InsertID, true
	}
	return m.boxes[len(m.boxes)-1].InsertID, true
}

// RequestReorder schedules a reorder pass. Rapid repeated requests within
// the coalescing window collapse into a single deferred execution.
func (m *Manager) RequestReorder() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.pending != nil {
		m.pending.Stop()
	}
	delay := m.cfg.ReorderDelay
	m.pending = time.AfterFunc(delay, m.reorderNow)
	m.mu.Unlock()
}

func (m *Manager) reorderNow() {
	placements := m.Reorder()
	m.mu.Lock()
	cb := m.onReorder
	closed := m.closed
	m.mu.Unlock()
	if cb != nil && !closed {
		cb(placements)
	}
}

// Close cancels any pending reorder; further requests are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	m.mu.Unlock()
}

// Reorder recomputes box geometry for the current layout and returns each
// insert's placement: bar position, which side its exit animation should
// aim at, where its name label sits, and the scaled font size.
func (m *Manager) Reorder() []Placement {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.boxes)
	if n == 0 {
		return nil
	}

	switch ForCount(n) {
	case LayoutSingle:
		box := m.boxes[0]
		box.x = 0
		if box.width <= 0 || box.width > m.cfg.BarWidth {
			box.width = m.cfg.BarWidth
		}
	case LayoutDual:
		prime, second := m.boxes[0], m.boxes[1]
		width := m.cfg.BarWidth / 2
		if m.cfg.DualBoxMax > 0 && width > m.cfg.DualBoxMax {
			width = m.cfg.DualBoxMax
		}
		prime.x = 0
		prime.width = width
		second.x = m.cfg.BarWidth - width
		second.width = width
	default:
		width := m.cfg.BarWidth / float64(n)
		for i, box := range m.boxes {
			box.x = float64(i) * width
			box.width = width
		}
	}

	font := m.fontSizeLocked(n)
	placements := make([]Placement, n)
	for i, box := range m.boxes {
		center := box.x + box.width/2
		exit := OrientRight
		if center < m.cfg.BarWidth/2 || (n == 1 && center == m.cfg.BarWidth/2) {
			exit = OrientLeft
		}
		name := OrientLeft
		if exit == OrientRight {
			name = OrientRight
		}
		placements[i] = Placement{
			InsertID:        box.InsertID,
			X:               box.x,
			Width:           box.width,
			ExitOrientation: exit,
			NameOrientation: name,
			FontSize:        font,
		}
	}
	return placements
}

func (m *Manager) fontSizeLocked(n int) float64 {
	size := m.cfg.MaxFontSize - float64(n-1)*m.cfg.FontStep
	if size < m.cfg.MinFontSize {
		size = m.cfg.MinFontSize
	}
	return size
}
