package workflows

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind names a fixed workflow graph.
type Kind string

const (
	KindComprehensiveAnalysis Kind = "comprehensive_analysis"
	KindRiskAssessment        Kind = "risk_assessment"
	KindValuation             Kind = "valuation"
	KindReportGeneration      Kind = "report_generation"
	KindQuickAnalysis         Kind = "quick_analysis"
)

// ParseKind validates a workflow kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindComprehensiveAnalysis, KindRiskAssessment, KindValuation,
		KindReportGeneration, KindQuickAnalysis:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown workflow kind %q", s)
}

// Status is the lifecycle status of a workflow execution. Transitions
// are monotone: once a terminal status is reached it never changes.
type Status int

const (
	StatusInitialized Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timeout"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimedOut
}

// MarshalJSON renders the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the string form of a status.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "initialized":
		*s = StatusInitialized
	case "running":
		*s = StatusRunning
	case "completed":
		*s = StatusCompleted
	case "failed":
		*s = StatusFailed
	case "timeout":
		*s = StatusTimedOut
	default:
		return fmt.Errorf("unknown workflow status %q", str)
	}
	return nil
}

// Results is an insertion-ordered map of step name to step output.
// Fan-out groups merge in graph declaration order, so serialized
// results are deterministic regardless of sibling completion order.
type Results struct {
	order  []string
	values map[string]any
}

// NewResults creates an empty result set.
func NewResults() *Results {
	return &Results{values: make(map[string]any)}
}

// Set stores a step result, preserving first-insertion order.
func (r *Results) Set(name string, value any) {
	if _, ok := r.values[name]; !ok {
		r.order = append(r.order, name)
	}
	r.values[name] = value
}

// Get returns a step result.
func (r *Results) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Keys returns step names in insertion order.
func (r *Results) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of stored results.
func (r *Results) Len() int { return len(r.order) }

// Clone returns a shallow copy.
func (r *Results) Clone() *Results {
	c := NewResults()
	for _, k := range r.order {
		c.Set(k, r.values[k])
	}
	return c
}

// MarshalJSON renders results as an object with keys in insertion order.
func (r *Results) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range r.order {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON restores results, preserving the key order of the
// serialized object.
func (r *Results) UnmarshalJSON(data []byte) error {
	r.order = nil
	r.values = make(map[string]any)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("results: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("results: expected string key, got %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}
		r.Set(key, value)
	}
	_, err = dec.Token() // closing brace
	return err
}
