package audit

import "time"

// Stage labels used when recording unit outcomes.
const (
	StageRetrieval = "retrieval"
	StageJudge     = "judge"
)

// Outcome labels used when recording unit outcomes.
const (
	OutcomeOK = "ok"
)

// Recorder observes per-unit outcomes and external call latency.
type Recorder interface {
	ObserveUnit(stage, outcome string)
	ObserveCall(stage string, elapsed time.Duration)
	ObserveViolation()
}

type nopRecorder struct{}

func (nopRecorder) ObserveUnit(string, string)        {}
func (nopRecorder) ObserveCall(string, time.Duration) {}
func (nopRecorder) ObserveViolation()                 {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
