package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

// cue is one subtitle entry.
type cue struct {
	start, end float64
	text       string
}

// Limits for cues built from unattributed words.
const (
	cueMaxWords    = 12
	cueMaxDuration = 6.0 // seconds
)

// cues derives subtitle entries: one per speaker chunk when the transcript is
// attributed, otherwise short runs of words, otherwise the whole text.
func cues(doc *transcript.Document) []cue {
	if len(doc.Chunks) > 0 {
		out := make([]cue, 0, len(doc.Chunks))
		for _, c := range doc.Chunks {
			text := c.Text
			if c.Speaker != "" && c.Speaker != transcript.Unknown {
				text = c.Speaker + ": " + text
			}
			out = append(out, cue{start: c.Start, end: c.End, text: text})
		}
		return out
	}
	if len(doc.Words) > 0 {
		return wordCues(doc.Words)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}
	return []cue{{start: 0, end: doc.Duration, text: strings.TrimSpace(doc.Text)}}
}

func wordCues(words []transcript.Word) []cue {
	var out []cue
	var b strings.Builder
	var cur cue
	n := 0
	flush := func() {
		if n > 0 {
			cur.text = strings.TrimSpace(b.String())
			out = append(out, cur)
		}
		b.Reset()
		n = 0
	}
	for _, w := range words {
		if n > 0 && (n >= cueMaxWords || w.End-cur.start > cueMaxDuration) {
			flush()
		}
		if n == 0 {
			cur = cue{start: w.Start}
		}
		b.WriteString(w.Text)
		cur.end = w.End
		n++
	}
	flush()
	return out
}

func writeSRT(w io.Writer, cs []cue) error {
	var b strings.Builder
	for i, c := range cs {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, SRTTime(c.start), SRTTime(c.end), c.text)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeVTT(w io.Writer, cs []cue) error {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cs {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", VTTTime(c.start), VTTTime(c.end), c.text)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
