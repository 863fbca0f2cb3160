package audio

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
)

// fakeRunner records requests and writes a placeholder output file for each
// successful non-null call. fail decides per request whether it errors.
type fakeRunner struct {
	mu          sync.Mutex
	calls       []Request
	diagnostics string
	fail        func(Request) bool
}

var errFakeRun = errors.New("fake ffmpeg exited 1")

func (f *fakeRunner) Run(_ context.Context, req Request) (Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.fail != nil && f.fail(req) {
		return Response{Diagnostics: "error"}, errFakeRun
	}
	if req.Null {
		return Response{Diagnostics: f.diagnostics}, nil
	}
	if err := os.WriteFile(req.Output, []byte("RIFF"), 0o644); err != nil {
		return Response{}, err
	}
	return Response{}, nil
}

func (f *fakeRunner) filters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Filter.String()
	}
	return out
}

// failOn fails requests whose rendered filter contains substr.
func failOn(substr string) func(Request) bool {
	return func(r Request) bool { return strings.Contains(r.Filter.String(), substr) }
}

const loudnormOutput = `[Parsed_loudnorm_0 @ 0x55d0c8] 
{
	"input_i" : "-27.61",
	"input_tp" : "-4.47",
	"input_lra" : "18.06",
	"input_thresh" : "-39.20",
	"output_i" : "-16.58",
	"output_tp" : "-1.50",
	"output_lra" : "14.78",
	"output_thresh" : "-27.71",
	"normalization_type" : "dynamic",
	"target_offset" : "0.58"
}
`
