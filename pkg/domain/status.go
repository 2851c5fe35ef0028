package domain

import (
	"fmt"
	"strings"
)

// StatusCode is the severity of a Status.
// Codes are ordered so that a larger code is worse, except JobInfo which is
// informational and ranks with Info.
type StatusCode uint8

const (
	StatusOK StatusCode = iota
	StatusCancel
	StatusInfo
	StatusWarning
	StatusError
	StatusException
	StatusBuildError
	StatusJobInfo
)

var statusNames = [...]string{
	StatusOK:         "OK",
	StatusCancel:     "CANCEL",
	StatusInfo:       "INFO",
	StatusWarning:    "WARNING",
	StatusError:      "ERROR",
	StatusException:  "EXCEPTION",
	StatusBuildError: "BUILDERROR",
	StatusJobInfo:    "JOBINFO",
}

func (c StatusCode) String() string {
	if int(c) >= len(statusNames) {
		return fmt.Sprintf("StatusCode(%d)", uint8(c))
	}
	return statusNames[c]
}

func (c StatusCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *StatusCode) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*c = StatusCode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status code %q", text)
}

func (c StatusCode) severity() int {
	switch c {
	case StatusOK:
		return 0
	case StatusInfo, StatusJobInfo:
		return 1
	case StatusCancel:
		return 2
	case StatusWarning:
		return 3
	case StatusBuildError:
		return 4
	case StatusError:
		return 5
	default:
		return 6
	}
}

// IsProblem reports whether c is a warning or worse.
func (c StatusCode) IsProblem() bool {
	return c.severity() >= StatusWarning.severity()
}

// Status is a structured report of an operation outcome. A status with
// children is a multi-status; Worst folds the severity of the whole tree.
type Status struct {
	Code     StatusCode `json:"code"`
	Message  string     `json:"message"`
	Project  ProjectKey `json:"project,omitempty"`
	BundleID int64      `json:"bundle_id,omitempty"`
	Err      error      `json:"-"`
	Cause    string     `json:"cause,omitempty"`
	Children []*Status  `json:"children,omitempty"`
}

// NewStatus creates a status with a formatted message.
func NewStatus(code StatusCode, project ProjectKey, format string, args ...any) *Status {
	return &Status{Code: code, Project: project, Message: fmt.Sprintf(format, args...)}
}

// WithErr attaches a cause and returns s.
func (s *Status) WithErr(err error) *Status {
	s.Err = err
	if err != nil {
		s.Cause = err.Error()
	}
	return s
}

// WithBundle attaches a bundle id and returns s.
func (s *Status) WithBundle(id int64) *Status {
	s.BundleID = id
	return s
}

// Add appends child statuses. Nil children are ignored.
func (s *Status) Add(children ...*Status) {
	for _, c := range children {
		if c != nil {
			s.Children = append(s.Children, c)
		}
	}
}

// Worst returns the most severe code of s and all its descendants.
func (s *Status) Worst() StatusCode {
	worst := s.Code
	for _, c := range s.Children {
		if w := c.Worst(); w.severity() > worst.severity() {
			worst = w
		}
	}
	return worst
}

// IsOK reports whether no status in the tree is a warning or worse.
func (s *Status) IsOK() bool {
	return !s.Worst().IsProblem()
}

// HasCode reports whether any status in the tree has code c.
func (s *Status) HasCode(c StatusCode) bool {
	if s.Code == c {
		return true
	}
	for _, child := range s.Children {
		if child.HasCode(c) {
			return true
		}
	}
	return false
}

// Walk visits s and its descendants depth first.
func (s *Status) Walk(fn func(depth int, st *Status)) {
	s.walk(0, fn)
}

func (s *Status) walk(depth int, fn func(int, *Status)) {
	fn(depth, s)
	for _, c := range s.Children {
		c.walk(depth+1, fn)
	}
}

func (s *Status) String() string {
	var b strings.Builder
	s.Walk(func(depth int, st *Status) {
		b.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(&b, "%s: %s", st.Code, st.Message)
		if st.Err != nil {
			fmt.Fprintf(&b, " (%v)", st.Err)
		}
		b.WriteByte('\n')
	})
	return b.String()
}
