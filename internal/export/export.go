// Package export renders a finished session as text, markdown, subtitles,
// JSON, or a zip bundle of all of them.
package export

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

// Format is an export file format.
type Format string

const (
	TXT  Format = "txt"
	MD   Format = "md"
	SRT  Format = "srt"
	VTT  Format = "vtt"
	JSON Format = "json"
	ZIP  Format = "zip"
)

// ErrUnsupportedFormat is returned for unknown format names.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// bundled lists the formats a zip contains, in archive order.
var bundled = []Format{TXT, MD, SRT, VTT, JSON}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	switch f {
	case TXT, MD, SRT, VTT, JSON, ZIP:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FileName is the download name for a format.
func (f Format) FileName() string {
	switch f {
	case TXT:
		return "transcript.txt"
	case MD:
		return "transcript.md"
	case SRT:
		return "subtitles.srt"
	case VTT:
		return "subtitles.vtt"
	case JSON:
		return "analysis.json"
	case ZIP:
		return "complete_analysis.zip"
	}
	return "export"
}

// ContentType is the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case TXT:
		return "text/plain; charset=utf-8"
	case MD:
		return "text/markdown; charset=utf-8"
	case SRT:
		return "application/x-subrip; charset=utf-8"
	case VTT:
		return "text/vtt; charset=utf-8"
	case JSON:
		return "application/json"
	case ZIP:
		return "application/zip"
	}
	return "application/octet-stream"
}

// Render writes doc to w in format f.
func Render(w io.Writer, doc *transcript.Document, f Format) error {
	switch f {
	case TXT:
		_, err := io.WriteString(w, doc.Text)
		return err
	case MD:
		return writeMarkdown(w, doc)
	case SRT:
		return writeSRT(w, cues(doc))
	case VTT:
		return writeVTT(w, cues(doc))
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case ZIP:
		return writeZip(w, doc)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
}

func writeZip(w io.Writer, doc *transcript.Document) error {
	zw := zip.NewWriter(w)
	for _, f := range bundled {
		fw, err := zw.Create(f.FileName())
		if err != nil {
			return fmt.Errorf("zip %s: %w", f.FileName(), err)
		}
		if err := Render(fw, doc, f); err != nil {
			return fmt.Errorf("zip %s: %w", f.FileName(), err)
		}
	}
	return zw.Close()
}

func writeMarkdown(w io.Writer, doc *transcript.Document) error {
	var b strings.Builder
	b.WriteString("# Transcript\n\n")
	if doc.Source != "" {
		fmt.Fprintf(&b, "_Source: %s_\n\n", doc.Source)
	}
	if doc.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(doc.Summary)
		b.WriteString("\n\n")
	}
	b.WriteString("## Transcript\n\n")
	if len(doc.Chunks) == 0 {
		b.WriteString(doc.Text)
		b.WriteString("\n")
	}
	for _, c := range doc.Chunks {
		fmt.Fprintf(&b, "**[%s] %s:** %s\n\n", clock(c.Start), c.Speaker, c.Text)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// clock formats seconds as H:MM:SS.
func clock(sec float64) string {
	s := int64(math.Max(sec, 0))
	return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
}

// millis converts seconds to whole milliseconds, clamping negatives to zero.
func millis(sec float64) int64 {
	if sec <= 0 || math.IsNaN(sec) {
		return 0
	}
	return int64(math.Round(sec * 1000))
}

// SRTTime formats seconds as HH:MM:SS,mmm.
func SRTTime(sec float64) string {
	ms := millis(sec)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// VTTTime formats seconds as HH:MM:SS.mmm.
func VTTTime(sec float64) string {
	ms := millis(sec)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
