package transcript

import (
	"sort"
)

// Align attributes every word to the speaker turn containing the word's
// midpoint. Words outside every turn get Unknown. When turns overlap the
// earliest-starting turn wins, then the earliest-ending, then the lexically
// smallest speaker label, so the result does not depend on input order.
//
// The output preserves the order of words. Empty words yields an empty
// slice; empty turns attributes nothing and also yields an empty slice.
func Align(words []Word, turns []SpeakerTurn) []AlignedWord {
	if len(words) == 0 || len(turns) == 0 {
		return []AlignedWord{}
	}

	sorted := make([]SpeakerTurn, len(turns))
	copy(sorted, turns)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Speaker < b.Speaker
	})

	out := make([]AlignedWord, 0, len(words))
	for _, w := range words {
		out = append(out, AlignedWord{Word: w, Speaker: speakerAt(sorted, w.Midpoint())})
	}
	return out
}

// speakerAt returns the first turn in precedence order containing t.
func speakerAt(sorted []SpeakerTurn, t float64) string {
	for _, turn := range sorted {
		if turn.Start > t {
			break
		}
		if turn.Contains(t) {
			return turn.Speaker
		}
	}
	return Unknown
}
