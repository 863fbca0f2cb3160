// Package transcript merges word-level recognition output with speaker-turn
// intervals into ordered, speaker-coherent chunks.
package transcript

// Unknown is the speaker label assigned to words that fall inside no turn.
const Unknown = "UNKNOWN"

// Word is a recognized word with times in seconds from the start of the audio.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Midpoint returns start + (end-start)/2.
func (w Word) Midpoint() float64 {
	return w.Start + (w.End-w.Start)/2
}

// SpeakerTurn is a diarization interval attributed to one speaker.
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Contains reports whether t lies within the turn, boundaries included.
func (s SpeakerTurn) Contains(t float64) bool {
	return s.Start <= t && t <= s.End
}

// SpeakerChunk is a run of consecutive words from one speaker.
type SpeakerChunk struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// AlignedWord is a word with the speaker the aligner attributed it to.
type AlignedWord struct {
	Word
	Speaker string `json:"speaker"`
}
