package textseg

import (
	"testing"
	"unicode"
)

func TestModeForLocale(t *testing.T) {
	tests := []struct {
		locale string
		want   Mode
	}{
		{"en", ModeWords},
		{"en-US", ModeWords},
		{"de", ModeWords},
		{"ja", ModeGroupedJP},
		{"ja-JP", ModeGroupedJP},
		{"zh", ModeGroupedCN},
		{"zh-Hant-TW", ModeGroupedCN},
		{"th", ModeUngrouped},
		{"km", ModeUngrouped},
		{"lo", ModeUngrouped},
		{"not a locale", ModeWords},
		{"", ModeWords},
	}
	for _, tc := range tests {
		if got := ModeForLocale(tc.locale); got != tc.want {
			t.Errorf("ModeForLocale(%q) = %v, want %v", tc.locale, got, tc.want)
		}
	}
}

func TestSegmentWords(t *testing.T) {
	units := Segment("the quick  fox", 0, "en")
	var words []string
	for _, u := range units {
		if u.Kind == UnitWord {
			words = append(words, u.Text)
		}
	}
	if len(words) != 3 || words[0] != "the" || words[1] != "quick" || words[2] != "fox" {
		t.Fatalf("unexpected words: %v", words)
	}
	if got := Reassemble(units); got != "the quick  fox" {
		t.Fatalf("reassembly mismatch: %q", got)
	}
}

func TestSegmentUngroupedSplitsEveryRune(t *testing.T) {
	text := "สวัสดี"
	units := Segment(text, 0, "th")
	if len(units) != len([]rune(text)) {
		t.Fatalf("expected %d units, got %d", len([]rune(text)), len(units))
	}
	for _, u := range units {
		if u.Kind != UnitChar {
			t.Fatalf("unexpected kind %v for %q", u.Kind, u.Text)
		}
	}
}

func TestSegmentProhibitedInvariants(t *testing.T) {
	texts := []string{
		"彼は「こんにちは」と言った。",
		"今日はいい天気ですね、そう思いませんか？",
		"（括弧）の中にも規則がある。",
	}
	for _, text := range texts {
		units := Segment(text, 0, "ja")
		if got := Reassemble(units); got != text {
			t.Fatalf("reassembly mismatch for %q: got %q", text, got)
		}
		for _, u := range units {
			if u.Kind != UnitGroup {
				continue
			}
			runes := []rune(u.Text)
			if kinsokuJP.noStart(runes[0]) {
				t.Errorf("group %q starts with a forbidden starter", u.Text)
			}
			if kinsokuJP.noEnd(runes[len(runes)-1]) {
				t.Errorf("group %q ends with a forbidden ender", u.Text)
			}
		}
	}
}

func TestSegmentProhibitedMinGroupSize(t *testing.T) {
	units := Segment("日本語のテキスト", 0, "ja")
	for i, u := range units {
		if u.Kind != UnitGroup {
			continue
		}
		// Only the final group may fall under the minimum; everything
		// else waits until it has at least two characters.
		if i < len(units)-1 && len([]rune(u.Text)) < minGroupSize {
			t.Errorf("group %d %q below minimum size", i, u.Text)
		}
	}
}

func TestSegmentProhibitedKeepsDigitRunsTogether(t *testing.T) {
	units := Segment("価格は１２３４５円です", 0, "ja")
	// No group may end with a digit while the next begins with one.
	for i := 0; i+1 < len(units); i++ {
		a, b := units[i], units[i+1]
		if a.Kind != UnitGroup || b.Kind != UnitGroup {
			continue
		}
		last := []rune(a.Text)[len([]rune(a.Text))-1]
		first := []rune(b.Text)[0]
		if unicode.IsDigit(last) && unicode.IsDigit(first) {
			t.Fatalf("digit run split between %q and %q", a.Text, b.Text)
		}
	}
}

func TestChineseUsesItsOwnRules(t *testing.T) {
	units := Segment("他说：“你好，世界。”", 0, "zh")
	if got := Reassemble(units); got != "他说：“你好，世界。”" {
		t.Fatalf("reassembly mismatch: %q", got)
	}
	for _, u := range units {
		if u.Kind != UnitGroup {
			continue
		}
		runes := []rune(u.Text)
		if kinsokuCN.noStart(runes[0]) {
			t.Errorf("group %q starts with a forbidden starter", u.Text)
		}
		if kinsokuCN.noEnd(runes[len(runes)-1]) {
			t.Errorf("group %q ends with a forbidden ender", u.Text)
		}
	}
}

func TestWrapInsertsSoftBreaks(t *testing.T) {
	units := Segment("alpha beta gamma delta", 11, "en")
	lines := 1
	line := 0
	for _, u := range units {
		if u.Kind == UnitBreak {
			if u.Text != "" {
				t.Fatalf("soft break should carry no text, got %q", u.Text)
			}
			lines++
			line = 0
			continue
		}
		line += len([]rune(u.Text))
		if line > 11 && u.Kind != UnitSpace {
			t.Fatalf("line exceeded width at %q", u.Text)
		}
	}
	if lines < 2 {
		t.Fatalf("expected wrapping to produce multiple lines")
	}
	if got := Reassemble(units); got != "alpha beta gamma delta" {
		t.Fatalf("soft breaks disturbed reassembly: %q", got)
	}
}

func TestWrapKeepsOversizedUnitIntact(t *testing.T) {
	units := Segment("supercalifragilistic", 5, "en")
	for _, u := range units {
		if u.Kind == UnitWord && u.Text != "supercalifragilistic" {
			t.Fatalf("oversized word was split: %q", u.Text)
		}
	}
}

func TestExplicitNewlinesSurviveAllModes(t *testing.T) {
	for _, locale := range []string{"en", "ja", "zh", "th"} {
		text := "one\ntwo"
		units := Segment(text, 0, locale)
		breaks := 0
		for _, u := range units {
			if u.Kind == UnitBreak {
				breaks++
				if u.Text != "\n" {
					t.Fatalf("explicit break lost its text in %s", locale)
				}
			}
		}
		if breaks != 1 {
			t.Fatalf("locale %s: expected 1 break, got %d", locale, breaks)
		}
		if got := Reassemble(units); got != text {
			t.Fatalf("locale %s reassembly mismatch: %q", locale, got)
		}
	}
}

func TestFlyInRegistry(t *testing.T) {
	if _, ok := FlyIn(DefaultFlyIn); !ok {
		t.Fatalf("default fly-in %q not registered", DefaultFlyIn)
	}
	if _, ok := FlyIn("nosuch"); ok {
		t.Fatalf("unknown fly-in resolved")
	}
	if len(FlyInNames()) < 4 {
		t.Fatalf("expected several registered fly-ins, got %v", FlyInNames())
	}
	if _, ok := Standing("jiggle"); !ok {
		t.Fatalf("jiggle standing not registered")
	}
}

func TestStandingDecayHasFloor(t *testing.T) {
	v := 10.0
	for i := 0; i < 100; i++ {
		v = decayed(v, 0.5)
	}
	if v < 0.5-1e-9 {
		t.Fatalf("decay fell through floor: %v", v)
	}
	if len(StandingNames()) != 4 {
		t.Fatalf("unexpected standing registry: %v", StandingNames())
	}
}
