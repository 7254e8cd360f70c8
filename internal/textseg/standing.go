package textseg

import (
	"math"
	"time"

	"footlights/stage/internal/anim"
	"footlights/stage/internal/scene"
)

// Standing animations run until cancelled: each cycle re-registers itself
// under the same animation id with decayed parameters, settling at a floor
// amplitude instead of stopping. The stable id makes the whole chain
// cancellable through the tracker.

var standings = map[string]StandingFunc{
	"jiggle": standingJiggle,
	"wave":   standingWave,
	"fade":   standingFade,
	"spin":   standingSpin,
}

// Standing looks up a continuous animation by name.
func Standing(name string) (StandingFunc, bool) {
	fn, ok := standings[name]
	return fn, ok
}

// StandingNames lists the registered continuous animations.
func StandingNames() []string {
	names := make([]string, 0, len(standings))
	for name := range standings {
		names = append(names, name)
	}
	return names
}

// StandingID returns the tracker animation id used for a unit's standing
// animation chain.
func StandingID(unit *scene.Node) string {
	return "standing:" + unit.Name
}

const (
	standingPeriod = 1200 * time.Millisecond
	standingDecay  = 0.85
)

func standingJiggle(tr *anim.Tracker, ownerID string, unit *scene.Node) {
	chainJiggle(tr, ownerID, unit, 3.0)
}

func chainJiggle(tr *anim.Tracker, ownerID string, unit *scene.Node, amp float64) {
	baseX, baseY := unit.X, unit.Y
	tr.Add(ownerID, StandingID(unit), anim.NewTween(anim.Tween{
		Duration: standingPeriod,
		Apply: func(t float64) {
			unit.X = baseX + amp*math.Sin(2*math.Pi*t)
			unit.Y = baseY + (amp/2)*math.Cos(2*math.Pi*t)
		},
		OnDone: func() {
			unit.X, unit.Y = baseX, baseY
			chainJiggle(tr, ownerID, unit, decayed(amp, 0.8))
		},
	}))
}

func standingWave(tr *anim.Tracker, ownerID string, unit *scene.Node) {
	chainWave(tr, ownerID, unit, 4.0)
}

func chainWave(tr *anim.Tracker, ownerID string, unit *scene.Node, amp float64) {
	baseY := unit.Y
	tr.Add(ownerID, StandingID(unit), anim.NewTween(anim.Tween{
		Duration: standingPeriod,
		Ease:     anim.EaseInOutSine,
		Apply: func(t float64) {
			unit.Y = baseY - amp*math.Sin(2*math.Pi*t)
		},
		OnDone: func() {
			unit.Y = baseY
			chainWave(tr, ownerID, unit, decayed(amp, 1.5))
		},
	}))
}

func standingFade(tr *anim.Tracker, ownerID string, unit *scene.Node) {
	chainFade(tr, ownerID, unit, 0.5)
}

func chainFade(tr *anim.Tracker, ownerID string, unit *scene.Node, depth float64) {
	tr.Add(ownerID, StandingID(unit), anim.NewTween(anim.Tween{
		Duration: standingPeriod,
		Ease:     anim.EaseInOutSine,
		Apply: func(t float64) {
			unit.Alpha = 1 - depth*math.Sin(math.Pi*t)
		},
		OnDone: func() {
			unit.Alpha = 1
			chainFade(tr, ownerID, unit, decayed(depth, 0.15))
		},
	}))
}

func standingSpin(tr *anim.Tracker, ownerID string, unit *scene.Node) {
	chainSpin(tr, ownerID, unit, 0.3)
}

func chainSpin(tr *anim.Tracker, ownerID string, unit *scene.Node, swing float64) {
	tr.Add(ownerID, StandingID(unit), anim.NewTween(anim.Tween{
		Duration: standingPeriod,
		Ease:     anim.EaseInOutSine,
		Apply: func(t float64) {
			unit.Rotation = swing * math.Sin(2*math.Pi*t)
		},
		OnDone: func() {
			unit.Rotation = 0
			chainSpin(tr, ownerID, unit, decayed(swing, 0.1))
		},
	}))
}

func decayed(value, floor float64) float64 {
	next := value * standingDecay
	if next < floor {
		return floor
	}
	return next
}
