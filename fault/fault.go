// Package fault classifies faults reported by a dedicated server.
//
// Dedicated servers report failures as free-form strings. Classify maps a
// fault string to a Kind through a lookup table: an exact-match map first,
// then an ordered list of pattern rules. New strings are added to the table,
// not to control flow.
package fault

import (
	"fmt"
	"regexp"
	"sync"
)

// Kind is the semantic category of a fault.
type Kind int

const (
	Generic Kind = iota
	Authentication
	UnavailableFeature
	LockedFeature
	UnknownPlayer
	PlayerState
	AlreadyInList
	NotInList
	IndexOutOfBound
	NextMap
	ChangeInProgress
	InvalidMap
	GameMode
	ServerOptions
	File
)

var kindNames = [...]string{
	Generic:            "fault",
	Authentication:     "authentication",
	UnavailableFeature: "unavailable feature",
	LockedFeature:      "locked feature",
	UnknownPlayer:      "unknown player",
	PlayerState:        "player state",
	AlreadyInList:      "already in list",
	NotInList:          "not in list",
	IndexOutOfBound:    "index out of bound",
	NextMap:            "next map",
	ChangeInProgress:   "change in progress",
	InvalidMap:         "invalid map",
	GameMode:           "game mode",
	ServerOptions:      "server options",
	File:               "file",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified server fault. Message and Code are the server's
// values, untouched.
type Error struct {
	Kind    Kind
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gbxremote: %s fault %d: %s", e.Kind, e.Code, e.Message)
}

// Is matches a kind sentinel, so callers branch with
// errors.Is(err, fault.ErrUnknownPlayer).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != 0 || t.Message != "" {
		return t.Kind == e.Kind && t.Code == e.Code && t.Message == e.Message
	}
	return t.Kind == e.Kind
}

var (
	ErrGeneric            = &Error{Kind: Generic}
	ErrAuthentication     = &Error{Kind: Authentication}
	ErrUnavailableFeature = &Error{Kind: UnavailableFeature}
	ErrLockedFeature      = &Error{Kind: LockedFeature}
	ErrUnknownPlayer      = &Error{Kind: UnknownPlayer}
	ErrPlayerState        = &Error{Kind: PlayerState}
	ErrAlreadyInList      = &Error{Kind: AlreadyInList}
	ErrNotInList          = &Error{Kind: NotInList}
	ErrIndexOutOfBound    = &Error{Kind: IndexOutOfBound}
	ErrNextMap            = &Error{Kind: NextMap}
	ErrChangeInProgress   = &Error{Kind: ChangeInProgress}
	ErrInvalidMap         = &Error{Kind: InvalidMap}
	ErrGameMode           = &Error{Kind: GameMode}
	ErrServerOptions      = &Error{Kind: ServerOptions}
	ErrFile               = &Error{Kind: File}
)

// Rule maps every fault string matching Pattern to Kind.
type Rule struct {
	Pattern *regexp.Regexp
	Kind    Kind
}

// Table is the lookup data behind Classify. It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	exact map[string]Kind
	rules []Rule
}

// NewTable returns an empty table; every string classifies as Generic.
func NewTable() *Table {
	return &Table{exact: make(map[string]Kind)}
}

// Add registers literal fault strings.
func (t *Table) Add(kind Kind, messages ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range messages {
		t.exact[m] = kind
	}
}

// AddPattern appends a pattern rule. Rules are tried in insertion order after
// the exact-match lookup misses.
func (t *Table) AddPattern(kind Kind, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.rules = append(t.rules, Rule{Pattern: re, Kind: kind})
	t.mu.Unlock()
	return nil
}

// Lookup returns the kind registered for msg, or Generic.
func (t *Table) Lookup(msg string) Kind {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if k, ok := t.exact[msg]; ok {
		return k
	}
	for _, r := range t.rules {
		if r.Pattern.MatchString(msg) {
			return r.Kind
		}
	}
	return Generic
}

// Classify turns a raw server fault into a classified Error.
func (t *Table) Classify(msg string, code int) *Error {
	return &Error{Kind: t.Lookup(msg), Code: code, Message: msg}
}

// Classify classifies with the default table.
func Classify(msg string, code int) *Error {
	return DefaultTable.Classify(msg, code)
}
