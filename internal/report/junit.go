package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Name     string       `xml:"name,attr"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Time     string       `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       string          `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []junitProperty `xml:"properties>property,omitempty"`
	Cases      []junitCase     `xml:"testcase"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitMessage `xml:"failure,omitempty"`
	Error     *junitMessage `xml:"error,omitempty"`
	Skipped   *junitMessage `xml:"skipped,omitempty"`
	SystemErr string        `xml:"system-err,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Body    string `xml:",chardata"`
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// WriteJUnit writes r as JUnit XML, one testsuite per scenario group.
func WriteJUnit(w io.Writer, r *Report) error {
	s := r.Summary()
	doc := junitSuites{
		Name:     r.Suite(),
		Tests:    s.Total,
		Failures: s.Fail,
		Errors:   s.Error,
		Skipped:  s.Skip,
		Time:     seconds(r.Duration()),
	}

	index := map[string]int{}
	totals := map[int]time.Duration{}
	for _, res := range r.Results() {
		i, ok := index[res.Group]
		if !ok {
			i = len(doc.Suites)
			index[res.Group] = i
			name := res.Group
			if name == "" {
				name = r.Suite()
			}
			doc.Suites = append(doc.Suites, junitSuite{
				Name:      name,
				Timestamp: r.Started().UTC().Format(time.RFC3339),
				Properties: []junitProperty{
					{Name: "run_id", Value: r.RunID()},
					{Name: "base_url", Value: r.BaseURL()},
				},
			})
		}
		suite := &doc.Suites[i]
		totals[i] += res.Duration

		tc := junitCase{
			Name:      res.Scenario,
			Classname: r.Suite() + "." + suite.Name,
			Time:      seconds(res.Duration),
			SystemErr: res.TeardownError,
		}
		switch res.Outcome {
		case Fail:
			tc.Failure = &junitMessage{Message: res.Message, Type: "AssertionError", Body: expectedActual(res)}
			suite.Failures++
		case Error:
			tc.Error = &junitMessage{Message: res.Message, Type: "Error", Body: res.Step}
			suite.Errors++
		case Skip:
			tc.Skipped = &junitMessage{Message: res.Message}
			suite.Skipped++
		}
		suite.Tests++
		suite.Cases = append(suite.Cases, tc)
	}
	for i := range doc.Suites {
		doc.Suites[i].Time = seconds(totals[i])
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode junit report: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func expectedActual(res Result) string {
	if res.Expected == "" && res.Actual == "" {
		return res.Message
	}
	return fmt.Sprintf("step: %s\nexpected: %q\nactual:   %q", res.Step, res.Expected, res.Actual)
}
