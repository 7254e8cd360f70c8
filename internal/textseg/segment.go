package textseg

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// UnitKind classifies a renderable text unit.
type UnitKind int

const (
	// UnitChar is a single character (ungrouped mode).
	UnitChar UnitKind = iota
	// UnitWord is a run of non-space characters (word mode).
	UnitWord
	// UnitGroup is a run built under line-breaking prohibition rules.
	UnitGroup
	// UnitSpace is whitespace preserved for exact reassembly.
	UnitSpace
	// UnitBreak is a line break. Text is "\n" for explicit newlines and
	// empty for soft wraps inserted by the width hint.
	UnitBreak
)

// Unit is one renderable text unit emitted by Segment.
type Unit struct {
	Kind UnitKind
	Text string
}

// Mode selects the segmentation strategy for a script.
type Mode int

const (
	// ModeWords groups space-delimited words so fly-ins stagger by word.
	ModeWords Mode = iota
	// ModeUngrouped animates every character independently.
	ModeUngrouped
	// ModeGroupedJP applies Japanese line-breaking prohibition rules.
	ModeGroupedJP
	// ModeGroupedCN applies Chinese line-breaking prohibition rules.
	ModeGroupedCN
)

// minGroupSize is the smallest prohibition-rule group that may be flushed.
const minGroupSize = 2

var supportedLocales = []language.Tag{
	language.English, // default: word grouping
	language.Japanese,
	language.Chinese,
	language.Thai,
	language.Khmer,
	language.Lao,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// ModeForLocale maps a BCP 47 locale string onto a segmentation mode.
// Unknown locales fall back to word grouping.
func ModeForLocale(locale string) Mode {
	tag, err := language.Parse(locale)
	if err != nil {
		return ModeWords
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return ModeWords
	}
	switch supportedLocales[idx] {
	case language.Japanese:
		return ModeGroupedJP
	case language.Chinese:
		return ModeGroupedCN
	case language.Thai, language.Khmer, language.Lao:
		return ModeUngrouped
	default:
		return ModeWords
	}
}

// Segment splits text into renderable units for the given locale. A
// positive widthHint (in characters) inserts soft break units so no line
// exceeds the hint; soft breaks carry no text and do not disturb exact
// reassembly.
func Segment(text string, widthHint float64, locale string) []Unit {
	var units []Unit
	switch ModeForLocale(locale) {
	case ModeUngrouped:
		units = segmentUngrouped(text)
	case ModeGroupedJP:
		units = segmentProhibited(text, kinsokuJP)
	case ModeGroupedCN:
		units = segmentProhibited(text, kinsokuCN)
	default:
		units = segmentWords(text)
	}
	if widthHint > 0 {
		units = wrapUnits(units, int(widthHint))
	}
	return units
}

func segmentUngrouped(text string) []Unit {
	units := make([]Unit, 0, len(text))
	for _, r := range text {
		switch {
		case r == '\n':
			units = append(units, Unit{Kind: UnitBreak, Text: "\n"})
		case unicode.IsSpace(r):
			units = append(units, Unit{Kind: UnitSpace, Text: string(r)})
		default:
			units = append(units, Unit{Kind: UnitChar, Text: string(r)})
		}
	}
	return units
}

func segmentWords(text string) []Unit {
	var units []Unit
	var word strings.Builder
	var space strings.Builder

	flushWord := func() {
		if word.Len() > 0 {
			units = append(units, Unit{Kind: UnitWord, Text: word.String()})
			word.Reset()
		}
	}
	flushSpace := func() {
		if space.Len() > 0 {
			units = append(units, Unit{Kind: UnitSpace, Text: space.String()})
			space.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r == '\n':
			flushWord()
			flushSpace()
			units = append(units, Unit{Kind: UnitBreak, Text: "\n"})
		case unicode.IsSpace(r):
			flushWord()
			space.WriteRune(r)
		default:
			flushSpace()
			word.WriteRune(r)
		}
	}
	flushWord()
	flushSpace()
	return units
}

// prohibitionRules holds a script's line-breaking prohibition sets.
// forbidStart characters may never begin a group (closing punctuation);
// forbidEnd characters may never end one (opening punctuation).
type prohibitionRules struct {
	forbidStart string
	forbidEnd   string
}

var kinsokuJP = prohibitionRules{
	forbidStart: "、。，．）〉》」』】〕…‥ーぁぃぅぇぉっゃゅょゎァィゥェォッャュョヮ々ゝゞ！？：；!?:;,.",
	forbidEnd:   "（〈《「『【〔([{“‘",
}

var kinsokuCN = prohibitionRules{
	forbidStart: "，。、；：？！）》〉」』】…—％‰℃!?;:,.",
	forbidEnd:   "（《〈「『【‘“([{",
}

func (p prohibitionRules) noStart(r rune) bool {
	return strings.ContainsRune(p.forbidStart, r)
}

func (p prohibitionRules) noEnd(r rune) bool {
	return strings.ContainsRune(p.forbidEnd, r)
}

// segmentProhibited builds groups incrementally. A pending group is flushed
// once it reaches the minimum size, the current character may legally end a
// group, and the following character may legally start one. Digit runs are
// never split.
func segmentProhibited(text string, rules prohibitionRules) []Unit {
	runes := []rune(text)
	var units []Unit
	var group []rune

	flush := func() {
		if len(group) > 0 {
			units = append(units, Unit{Kind: UnitGroup, Text: string(group)})
			group = group[:0]
		}
	}

	for i, r := range runes {
		if r == '\n' {
			flush()
			units = append(units, Unit{Kind: UnitBreak, Text: "\n"})
			continue
		}
		if unicode.IsSpace(r) {
			flush()
			units = append(units, Unit{Kind: UnitSpace, Text: string(r)})
			continue
		}
		group = append(group, r)
		if len(group) < minGroupSize {
			continue
		}
		if i+1 < len(runes) {
			next := runes[i+1]
			if unicode.IsDigit(r) && unicode.IsDigit(next) {
				continue
			}
			if rules.noStart(next) {
				continue
			}
		}
		if rules.noEnd(r) {
			continue
		}
		flush()
	}
	flush()
	return units
}

// wrapUnits inserts soft breaks so no line exceeds width characters. Breaks
// land on unit boundaries only; a single oversized unit stays intact.
func wrapUnits(units []Unit, width int) []Unit {
	if width <= 0 {
		return units
	}
	wrapped := make([]Unit, 0, len(units))
	line := 0
	for _, unit := range units {
		if unit.Kind == UnitBreak {
			wrapped = append(wrapped, unit)
			line = 0
			continue
		}
		length := len([]rune(unit.Text))
		if line > 0 && line+length > width {
			wrapped = append(wrapped, Unit{Kind: UnitBreak})
			line = 0
			if unit.Kind == UnitSpace {
				wrapped = append(wrapped, unit)
				line = length
				continue
			}
		}
		wrapped = append(wrapped, unit)
		line += length
	}
	return wrapped
}

// Reassemble concatenates unit text, reproducing the original input for any
// segmentation mode.
func Reassemble(units []Unit) string {
	var b strings.Builder
	for _, unit := range units {
		b.WriteString(unit.Text)
	}
	return b.String()
}
