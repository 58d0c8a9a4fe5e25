package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/JakeFAU/scrape-gateway/internal/browser"
)

// ErrUnknownRoutine is returned when no routine is registered under a name.
var ErrUnknownRoutine = errors.New("unknown scrape routine")

// Request carries the caller-supplied routine inputs.
type Request struct {
	SearchTerm string `json:"searchTerm"`
}

// DecodeRequest reads the routine inputs from a JSON body. An empty body, or one
// whose fields do not fit Request, yields a zero Request so routines fall back
// to their defaults.
func DecodeRequest(body []byte) Request {
	var req Request
	if len(strings.TrimSpace(string(body))) == 0 {
		return req
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}
	}
	return req
}

// Result is the summary a routine returns to the caller.
type Result struct {
	HTMLLength int `json:"htmlLength"`
	// HTML is the captured document; it never leaves the process in a response.
	HTML string `json:"-"`
}

// HTMLLength measures markup in UTF-16 code units, the unit browsers report string length in.
func HTMLLength(html string) int {
	return len(utf16.Encode([]rune(html)))
}

// Routine is one fixed browser interaction sequence.
type Routine interface {
	Name() string
	Run(ctx context.Context, page browser.Page, req Request) (Result, error)
}

// Registry maps route names to routines.
type Registry struct {
	routines map[string]Routine
}

// NewRegistry indexes routines by Name. Duplicate names are rejected.
func NewRegistry(routines ...Routine) (*Registry, error) {
	r := &Registry{routines: make(map[string]Routine, len(routines))}
	for _, routine := range routines {
		if routine == nil {
			return nil, errors.New("nil routine")
		}
		name := routine.Name()
		if name == "" {
			return nil, errors.New("routine name is required")
		}
		if _, exists := r.routines[name]; exists {
			return nil, fmt.Errorf("duplicate routine %q", name)
		}
		r.routines[name] = routine
	}
	return r, nil
}

// Lookup returns the routine registered under name.
func (r *Registry) Lookup(name string) (Routine, error) {
	routine, ok := r.routines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoutine, name)
	}
	return routine, nil
}

// Names lists registered routine names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.routines))
	for name := range r.routines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
