// Package erc maps the numeric error codes reported by boundary-scan cables
// to names and human-readable descriptions.
package erc

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Code is a cable or library error code. Zero means success.
type Code int

// Category groups codes by who is responsible for the failure.
type Category uint8

const (
	CategoryNone Category = iota
	CategoryDevice
	CategoryUser
	CategorySystem
	CategoryLibrary
)

func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryDevice:
		return "device"
	case CategoryUser:
		return "user"
	case CategorySystem:
		return "system"
	case CategoryLibrary:
		return "library"
	default:
		return fmt.Sprintf("Category(%d)", c)
	}
}

// Record describes one error code.
type Record struct {
	Code        Code
	Name        string
	Description string
	Category    Category
}

// ErrUnknownCode is returned when a code is not registered.
var ErrUnknownCode = errors.New("erc: unknown error code")

// Registry is a read-mostly table of error records.
type Registry struct {
	mu      sync.RWMutex
	records map[Code]Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[Code]Record)}
}

// Register adds rec. Codes may only be registered once.
func (r *Registry) Register(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[rec.Code]; ok {
		return fmt.Errorf("erc: code %d already registered as %s", rec.Code, existing.Name)
	}
	r.records[rec.Code] = rec
	return nil
}

// Lookup returns the record for code or an error wrapping ErrUnknownCode.
func (r *Registry) Lookup(code Code) (Record, error) {
	r.mu.RLock()
	rec, ok := r.records[code]
	r.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("%w: %d", ErrUnknownCode, code)
	}
	return rec, nil
}

// Records returns every registered record ordered by code.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	for _, rec := range builtin {
		if err := r.Register(rec); err != nil {
			panic(err)
		}
	}
	return r
}()

// Default returns the registry preloaded with the cable and library codes.
func Default() *Registry {
	return defaultRegistry
}

// Lookup resolves code against the default registry.
func Lookup(code Code) (Record, error) {
	return defaultRegistry.Lookup(code)
}

func (c Code) String() string {
	if rec, err := Lookup(c); err == nil {
		return rec.Name
	}
	return fmt.Sprintf("erc(%d)", int(c))
}

// Error attaches a code to a failed cable operation.
type Error struct {
	Code Code
	Op   string
	Err  error
}

// Errorf builds an *Error for op with a formatted cause.
func Errorf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	desc := e.Code.String()
	if rec, err := Lookup(e.Code); err == nil {
		desc = rec.Description
	}
	msg := fmt.Sprintf("%s failed (%d %s)", e.Op, int(e.Code), desc)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the code carried by err. Nil maps to NoError and errors
// without a code map to Unknown.
func CodeOf(err error) Code {
	if err == nil {
		return NoError
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return Unknown
}

// Tracker remembers the code of the most recent failure.
type Tracker struct {
	mu   sync.Mutex
	last Code
}

// Record stores the code of err. Nil errors are ignored so a later success
// does not hide an earlier failure.
func (t *Tracker) Record(err error) {
	if err == nil {
		return
	}
	t.Set(CodeOf(err))
}

// Set stores code directly.
func (t *Tracker) Set(code Code) {
	t.mu.Lock()
	t.last = code
	t.mu.Unlock()
}

// Last returns the most recently recorded code.
func (t *Tracker) Last() Code {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Clear resets the tracker to NoError.
func (t *Tracker) Clear() {
	t.Set(NoError)
}
