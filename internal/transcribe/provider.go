package transcribe

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "whisper", "deepinfra"
	Model() string // model identifier for DB/logs
}

// TranscribeOpts are per-request options. Zero values are omitted from the
// request so servers fall back to their own defaults.
type TranscribeOpts struct {
	Temperature float64
	Language    string // "" lets the server detect the language
	Prompt      string
	BeamSize    int
	VadFilter   bool
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds
	Words    []transcript.Word
}

// audioUpload is one multipart transcription request.
type audioUpload struct {
	provider  string // for error messages
	url       string
	apiKey    string
	fileField string
	fields    [][2]string
}

func (u *audioUpload) field(name, value string) {
	u.fields = append(u.fields, [2]string{name, value})
}

// post streams audioPath to the endpoint and returns the body of a 200
// response.
func (u *audioUpload) post(ctx context.Context, client *http.Client, audioPath string) ([]byte, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(u.write(mw, f, filepath.Base(audioPath)))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, pr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", u.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s API error (status %d): %s", u.provider, resp.StatusCode, string(body))
	}
	return body, nil
}

func (u *audioUpload) write(mw *multipart.Writer, audio io.Reader, name string) error {
	part, err := mw.CreateFormFile(u.fileField, name)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return fmt.Errorf("copy audio data: %w", err)
	}
	for _, kv := range u.fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return mw.Close()
}

// segment is a segment-level timestamp, returned by servers that do not
// support word granularity.
type segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// wordsFromSegments splits each segment into words and spreads the segment's
// time range evenly across them. The timing is approximate but good enough
// for speaker alignment.
func wordsFromSegments(segments []segment) []transcript.Word {
	var words []transcript.Word
	for _, seg := range segments {
		tokens := strings.Fields(seg.Text)
		if len(tokens) == 0 {
			continue
		}
		step := (seg.End - seg.Start) / float64(len(tokens))
		for i, tok := range tokens {
			words = append(words, transcript.Word{
				Text:  tok,
				Start: seg.Start + float64(i)*step,
				End:   seg.Start + float64(i+1)*step,
			})
		}
	}
	return words
}

// spaceWords makes word text safe for verbatim concatenation: every word
// after the first starts with whitespace, except in languages and scripts
// written without spaces between words.
func spaceWords(words []transcript.Word, language string) []transcript.Word {
	if unspacedLanguages[strings.ToLower(language)] {
		return words
	}
	for i := 1; i < len(words); i++ {
		w := words[i].Text
		if w == "" {
			continue
		}
		r := []rune(w)[0]
		if unicode.IsSpace(r) || isClosingPunct(r) || isUnspacedScript(r) || endsUnspaced(words[i-1].Text) {
			continue
		}
		words[i].Text = " " + w
	}
	return words
}

// unspacedLanguages holds ISO 639-1 codes and the full names some servers
// report for languages written without word separators.
var unspacedLanguages = map[string]bool{
	"zh": true, "ja": true, "th": true, "lo": true, "km": true, "my": true, "bo": true,
	"chinese": true, "japanese": true, "thai": true, "lao": true, "khmer": true,
	"burmese": true, "myanmar": true, "tibetan": true, "cantonese": true, "yue": true,
}

var unspacedScripts = []*unicode.RangeTable{
	unicode.Han, unicode.Hiragana, unicode.Katakana,
	unicode.Thai, unicode.Lao, unicode.Khmer, unicode.Myanmar, unicode.Tibetan,
}

func isUnspacedScript(r rune) bool {
	return unicode.In(r, unspacedScripts...)
}

func endsUnspaced(w string) bool {
	rs := []rune(w)
	return len(rs) > 0 && isUnspacedScript(rs[len(rs)-1])
}

func isClosingPunct(r rune) bool {
	return strings.ContainsRune(".,!?;:)]}'\"%", r)
}
