package metrics

import "github.com/kushiiitd05/IntelliScript/internal/audio"

// ObserveAudio records stage timings, degradations and the outcome of one
// audio pipeline run.
func ObserveAudio(res audio.Result) {
	for _, t := range res.Timings {
		AudioStageDuration.WithLabelValues(string(t.Stage)).Observe(t.Duration.Seconds())
	}
	for _, d := range res.Degradations {
		AudioDegradationsTotal.WithLabelValues(string(d.Stage)).Inc()
	}
	AudioRunsTotal.WithLabelValues(res.Outcome.String()).Inc()
}
