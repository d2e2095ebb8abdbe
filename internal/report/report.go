// Package report holds the immutable outcome of a suite run and writes it in
// the formats CI front ends consume.
package report

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal state of one scenario.
type Outcome string

const (
	Pass  Outcome = "PASS"
	Fail  Outcome = "FAIL"
	Error Outcome = "ERROR"
	// Skip marks pending scenarios, scenarios with unmet requirements and
	// scenarios never started because the run was aborted.
	Skip Outcome = "SKIP"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{Pass, Fail, Error, Skip}

// Failed reports whether the outcome makes the run fail.
func (o Outcome) Failed() bool {
	return o == Fail || o == Error
}

// Result is the record of one scenario.
type Result struct {
	Group    string        `json:"group,omitempty"`
	Scenario string        `json:"scenario"`
	Outcome  Outcome       `json:"outcome"`
	Message  string        `json:"message,omitempty"`
	Step     string        `json:"step,omitempty"`
	Expected string        `json:"expected,omitempty"`
	Actual   string        `json:"actual,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	// TeardownError is recorded separately and never changes Outcome.
	TeardownError string `json:"teardown_error,omitempty"`
	Screenshot    string `json:"screenshot,omitempty"`
}

// ID is the "group/scenario" name.
func (r Result) ID() string {
	if r.Group == "" {
		return r.Scenario
	}
	return r.Group + "/" + r.Scenario
}

// Summary counts results per outcome.
type Summary struct {
	Total int `json:"total"`
	Pass  int `json:"pass"`
	Fail  int `json:"fail"`
	Error int `json:"error"`
	Skip  int `json:"skip"`
}

// Count returns the number of results with outcome o.
func (s Summary) Count(o Outcome) int {
	switch o {
	case Pass:
		return s.Pass
	case Fail:
		return s.Fail
	case Error:
		return s.Error
	case Skip:
		return s.Skip
	}
	return 0
}

// Report is the ordered result list of one suite run. It cannot be changed
// after New; accessors return copies.
type Report struct {
	runID    string
	suite    string
	baseURL  string
	started  time.Time
	finished time.Time
	aborted  string
	results  []Result
}

// Meta describes the run a report belongs to.
type Meta struct {
	Suite    string
	BaseURL  string
	Started  time.Time
	Finished time.Time
	// Aborted is the reason the run stopped early, if it did.
	Aborted string
}

// New freezes results into a Report with a fresh run id.
func New(meta Meta, results []Result) *Report {
	return &Report{
		runID:    uuid.NewString(),
		suite:    meta.Suite,
		baseURL:  meta.BaseURL,
		started:  meta.Started,
		finished: meta.Finished,
		aborted:  meta.Aborted,
		results:  append([]Result(nil), results...),
	}
}

func (r *Report) RunID() string       { return r.runID }
func (r *Report) Suite() string       { return r.suite }
func (r *Report) BaseURL() string     { return r.baseURL }
func (r *Report) Started() time.Time  { return r.started }
func (r *Report) Finished() time.Time { return r.finished }
func (r *Report) Aborted() string     { return r.aborted }
func (r *Report) Len() int            { return len(r.results) }

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.finished.Before(r.started) {
		return 0
	}
	return r.finished.Sub(r.started)
}

// Results returns a copy of the results in run order.
func (r *Report) Results() []Result {
	return append([]Result(nil), r.results...)
}

// Summary counts the results per outcome.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.results)}
	for _, res := range r.results {
		switch res.Outcome {
		case Pass:
			s.Pass++
		case Fail:
			s.Fail++
		case Error:
			s.Error++
		case Skip:
			s.Skip++
		}
	}
	return s
}

// Failed reports whether any scenario is FAIL or ERROR. The process exit
// status follows it.
func (r *Report) Failed() bool {
	for _, res := range r.results {
		if res.Outcome.Failed() {
			return true
		}
	}
	return false
}

type reportJSON struct {
	RunID    string    `json:"run_id"`
	Suite    string    `json:"suite"`
	BaseURL  string    `json:"base_url,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Aborted  string    `json:"aborted,omitempty"`
	Summary  Summary   `json:"summary"`
	Results  []Result  `json:"results"`
}

// MarshalJSON implements json.Marshaler.
func (r *Report) MarshalJSON() ([]byte, error) {
	results := r.results
	if results == nil {
		results = []Result{}
	}
	return json.Marshal(reportJSON{
		RunID:    r.runID,
		Suite:    r.suite,
		BaseURL:  r.baseURL,
		Started:  r.started,
		Finished: r.finished,
		Aborted:  r.aborted,
		Summary:  r.Summary(),
		Results:  results,
	})
}

// AnyFailed reports whether any of reports failed.
func AnyFailed(reports []*Report) bool {
	for _, r := range reports {
		if r != nil && r.Failed() {
			return true
		}
	}
	return false
}
