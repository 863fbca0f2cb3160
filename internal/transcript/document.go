package transcript

import (
	"strings"
	"time"
)

// Document is the speaker-attributed transcript of one recording.
type Document struct {
	SessionID    string         `json:"session_id"`
	Source       string         `json:"source"`
	Language     string         `json:"language,omitempty"`
	Duration     float64        `json:"duration"`
	Text         string         `json:"text"`
	Words        []Word         `json:"words"`
	Chunks       []SpeakerChunk `json:"chunks"`
	Summary      string         `json:"summary,omitempty"`
	AudioOutcome string         `json:"audio_outcome"`
	Degradations []string       `json:"degradations,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Speakers returns the distinct chunk speakers in order of first appearance.
func (d *Document) Speakers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range d.Chunks {
		if !seen[c.Speaker] {
			seen[c.Speaker] = true
			out = append(out, c.Speaker)
		}
	}
	return out
}

// WordCount counts words in the transcript text.
func (d *Document) WordCount() int {
	if len(d.Words) > 0 {
		return len(d.Words)
	}
	return len(strings.Fields(d.Text))
}
