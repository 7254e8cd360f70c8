package textseg

import (
	"math"
	"time"

	"footlights/stage/internal/anim"
	"footlights/stage/internal/scene"
)

// StandingFunc applies a continuous idle animation to one text unit node.
type StandingFunc func(tr *anim.Tracker, ownerID string, unit *scene.Node)

// FlyInFunc animates a sequence of unit nodes onto the stage. Each unit's
// entrance lasts total and starts stagger after the previous one; when a
// unit finishes, standing (if non-nil) takes over.
type FlyInFunc func(tr *anim.Tracker, ownerID string, units []*scene.Node, total, stagger time.Duration, standing StandingFunc)

var flyIns = map[string]FlyInFunc{
	"typewriter": flyInTypewriter,
	"fadein":     flyInFade,
	"slidein":    flyInSlide,
	"scalein":    flyInScale,
	"fallin":     flyInFall,
}

// FlyIn looks up an entrance animation by name.
func FlyIn(name string) (FlyInFunc, bool) {
	fn, ok := flyIns[name]
	return fn, ok
}

// FlyInNames lists the registered entrance animations.
func FlyInNames() []string {
	names := make([]string, 0, len(flyIns))
	for name := range flyIns {
		names = append(names, name)
	}
	return names
}

// DefaultFlyIn is used when neither the insert nor the user picked a style.
const DefaultFlyIn = "typewriter"

func flyInID(unit *scene.Node) string {
	return "flyin:" + unit.Name
}

func runFlyIn(tr *anim.Tracker, ownerID string, units []*scene.Node, total, stagger time.Duration, standing StandingFunc, ease anim.EaseFunc, apply func(unit *scene.Node, t float64)) {
	for i, unit := range units {
		unit := unit
		apply(unit, 0)
		tr.Add(ownerID, flyInID(unit), anim.NewTween(anim.Tween{
			Delay:    time.Duration(i) * stagger,
			Duration: total,
			Ease:     ease,
			Apply: func(t float64) {
				apply(unit, t)
			},
			OnDone: func() {
				apply(unit, 1)
				if standing != nil {
					standing(tr, ownerID, unit)
				}
			},
		}))
	}
}

func flyInTypewriter(tr *anim.Tracker, ownerID string, units []*scene.Node, total, stagger time.Duration, standing StandingFunc) {
	runFlyIn(tr, ownerID, units, total, stagger, standing, anim.Linear, func(unit *scene.Node, t float64) {
		if t >= 1 {
			unit.Alpha = 1
		} else {
			unit.Alpha = 0
		}
	})
}

func flyInFade(tr *anim.Tracker, ownerID string, units []*scene.Node, total, stagger time.Duration, standing StandingFunc) {
	runFlyIn(tr, ownerID, units, total, stagger, standing, anim.EaseOutQuad, func(unit *scene.Node, t float64) {
		unit.Alpha = t
	})
}

func flyInSlide(tr *anim.Tracker, ownerID string, units []*scene.Node, total, stagger time.Duration, standing StandingFunc) {
	const offset = 40.0
	bases := captureX(units)
	runFlyIn(tr, ownerID, units, total, stagger, standing, anim.EaseOutCubic, func(unit *scene.Node, t float64) {
		unit.X = bases[unit] + offset*(1-t)
		unit.Alpha = t
	})
}

func flyInScale(tr *anim.Tracker, ownerID string, units []*scene.Node, total, stagger time.Duration, standing StandingFunc) {
	runFlyIn(tr, ownerID, units, total, stagger, standing, anim.EaseOutElastic, func(unit *scene.Node, t float64) {
		unit.ScaleX = t
		unit.ScaleY = t
		unit.Alpha = math.Min(1, t*2)
	})
}

func flyInFall(tr *anim.Tracker, ownerID string, units []*scene.Node, total, stagger time.Duration, standing StandingFunc) {
	const drop = 60.0
	bases := captureY(units)
	runFlyIn(tr, ownerID, units, total, stagger, standing, anim.EaseOutBounce, func(unit *scene.Node, t float64) {
		unit.Y = bases[unit] - drop*(1-t)
		unit.Alpha = math.Min(1, t*2)
	})
}

func captureX(units []*scene.Node) map[*scene.Node]float64 {
	bases := make(map[*scene.Node]float64, len(units))
	for _, unit := range units {
		bases[unit] = unit.X
	}
	return bases
}

func captureY(units []*scene.Node) map[*scene.Node]float64 {
	bases := make(map[*scene.Node]float64, len(units))
	for _, unit := range units {
		bases[unit] = unit.Y
	}
	return bases
}
