// Package extract derives typed port values from cached read responses.
package extract

import (
	"errors"
	"fmt"
	"regexp"

	"generichttp/pkg/models"
	"generichttp/pkg/snapshot"

	"github.com/xeipuuv/gojsonpointer"
)

var (
	// ErrPointer is returned when a JSON pointer does not resolve against the response.
	// It is distinct from an absent value.
	ErrPointer = errors.New("json pointer not resolvable")
	// ErrRule is returned for rules that cannot be compiled.
	ErrRule = errors.New("invalid read rule")
)

// Rule selects the raw value of a port from a snapshot.
// found is false when the snapshot holds no value for the port.
type Rule interface {
	Raw(s *snapshot.Snapshot) (raw any, found bool, err error)
	String() string
}

// StatusRule derives the value from the response status alone.
type StatusRule struct{}

// PointerRule resolves a JSON pointer against the parsed response body.
type PointerRule struct {
	path    string
	pointer gojsonpointer.JsonPointer
}

// RegexRule matches a pattern at the start of the response body.
type RegexRule struct {
	pattern string
	re      *regexp.Regexp
}

// NewRule compiles a read rule once, when the port is created.
// A JSON pointer takes precedence over a body regex.
func NewRule(r models.ReadRule) (Rule, error) {
	switch {
	case r.JSONPath != "":
		p, err := gojsonpointer.NewJsonPointer(r.JSONPath)
		if err != nil {
			return nil, fmt.Errorf("%w: json_path %q: %v", ErrRule, r.JSONPath, err)
		}
		return &PointerRule{path: r.JSONPath, pointer: p}, nil

	case r.BodyRegex != "":
		// \A anchors the match at the start of the body without touching group numbering
		re, err := regexp.Compile(`\A(?:` + r.BodyRegex + `)`)
		if err != nil {
			return nil, fmt.Errorf("%w: body_regex %q: %v", ErrRule, r.BodyRegex, err)
		}
		return &RegexRule{pattern: r.BodyRegex, re: re}, nil

	default:
		return StatusRule{}, nil
	}
}

func (StatusRule) Raw(s *snapshot.Snapshot) (any, bool, error) {
	return s.Status < 300, true, nil
}

func (StatusRule) String() string { return "status" }

func (r *PointerRule) Raw(s *snapshot.Snapshot) (any, bool, error) {
	if !s.HasJSON {
		return nil, false, nil
	}
	v, _, err := r.pointer.Get(s.JSON)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrPointer, r.path, err)
	}
	return v, true, nil
}

func (r *PointerRule) String() string { return "json_path " + r.path }

func (r *RegexRule) Raw(s *snapshot.Snapshot) (any, bool, error) {
	loc := r.re.FindStringSubmatchIndex(s.Body)
	if loc == nil {
		return nil, false, nil
	}
	// Patterns without a group yield the whole match
	if len(loc) < 4 {
		return s.Body[loc[0]:loc[1]], true, nil
	}
	if loc[2] < 0 {
		// group 1 exists but did not take part in the match
		return nil, true, nil
	}
	return s.Body[loc[2]:loc[3]], true, nil
}

func (r *RegexRule) String() string { return "body_regex " + r.pattern }
