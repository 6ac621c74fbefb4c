// Package anonymizer replaces student-identifying fields in parsed JSON
// trees with stable pseudonyms and scrubs PII patterns from free text.
// All functions are pure over their input: no network, no disk, and the
// input tree is never mutated.
package anonymizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// RecordType selects the anonymization rules applied to a record.
type RecordType int

const (
	// RecordAuto classifies records by shape (see classify).
	RecordAuto RecordType = iota
	RecordUser
	RecordDiscussionEntry
	RecordSubmission
	RecordAssignment
	RecordGeneric
)

const (
	redacted        = "[REDACTED]"
	contentRedacted = "[CONTENT_REDACTED]"
	longDescription = "[LONG_DESCRIPTION_REDACTED_FOR_PRIVACY]"

	// Strings on user records longer than this are assumed free text and
	// redacted wholesale.
	longStringLimit = 50
	// Assignment descriptions longer than this are dropped.
	descriptionLimit = 1000
)

// Anonymizer derives pseudonyms and applies the per-record-type rules.
// The pseudonym cache exists for debugging and statistics only: the
// derivation is stateless, so clearing the cache never changes output.
type Anonymizer struct {
	prefix string
	debug  bool
	logger *slog.Logger

	mu         sync.RWMutex
	pseudonyms map[string]string
}

// Option configures an Anonymizer.
type Option func(*Anonymizer)

// WithPrefix overrides the default "Student" role prefix.
func WithPrefix(p string) Option {
	return func(a *Anonymizer) {
		if p != "" {
			a.prefix = p
		}
	}
}

// WithDebug enables pseudonym-creation debug logging and statistics.
func WithDebug(on bool) Option {
	return func(a *Anonymizer) { a.debug = on }
}

// WithLogger sets the slog logger used in debug mode.
func WithLogger(l *slog.Logger) Option {
	return func(a *Anonymizer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Anonymizer with the default "Student" prefix.
func New(opts ...Option) *Anonymizer {
	a := &Anonymizer{
		prefix:     "Student",
		logger:     slog.Default(),
		pseudonyms: make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PseudonymFor returns the stable pseudonym for a real Canvas user ID:
// the role prefix joined to the first 8 hex characters of SHA-256 over
// the ID's decimal string. Deterministic across runs and processes.
func (a *Anonymizer) PseudonymFor(id any) string {
	s, ok := idString(id)
	if !ok {
		return redacted
	}
	key := a.prefix + "/" + s

	a.mu.RLock()
	if p, hit := a.pseudonyms[key]; hit {
		a.mu.RUnlock()
		return p
	}
	a.mu.RUnlock()

	sum := sha256.Sum256([]byte(s))
	p := a.prefix + "_" + hex.EncodeToString(sum[:])[:8]

	a.mu.Lock()
	// Monotonic: first writer wins; the derivation is deterministic so
	// racing writers compute the same value anyway.
	if existing, hit := a.pseudonyms[key]; hit {
		p = existing
	} else {
		a.pseudonyms[key] = p
	}
	a.mu.Unlock()

	if a.debug {
		a.logger.Debug("anonymizer: pseudonym assigned", "pseudonym", p)
	}
	return p
}

// emailFor is the pseudonymous mailbox form for a user ID.
func (a *Anonymizer) emailFor(id any) string {
	p := a.PseudonymFor(id)
	if p == redacted {
		return "redacted@example.edu"
	}
	return strings.ToLower(p) + "@example.edu"
}

// Anonymize walks a parsed JSON tree and returns an anonymized copy,
// classifying each record by shape. Idempotent: applying it twice yields
// the same tree as once.
func (a *Anonymizer) Anonymize(v any) any {
	return a.AnonymizeAs(v, RecordAuto)
}

// AnonymizeAs is Anonymize with an explicit record type for the root.
func (a *Anonymizer) AnonymizeAs(v any, rt RecordType) any {
	switch t := v.(type) {
	case map[string]any:
		if rt == RecordAuto {
			rt = classify(t)
		}
		switch rt {
		case RecordUser:
			return a.anonymizeUser(t)
		case RecordDiscussionEntry:
			return a.anonymizeEntry(t)
		case RecordSubmission:
			return a.anonymizeSubmission(t)
		case RecordAssignment:
			return a.anonymizeAssignment(t)
		default:
			return a.anonymizeGeneric(t)
		}
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = a.AnonymizeAs(el, rt)
		}
		return out
	default:
		return v
	}
}

// classify infers the record type from its shape.
func classify(m map[string]any) RecordType {
	_, hasName := m["name"]
	_, hasEmail := m["email"]
	if hasName && hasEmail {
		return RecordUser
	}
	if _, ok := m["message"]; ok {
		return RecordDiscussionEntry
	}
	if _, ok := m["submitted_at"]; ok {
		return RecordSubmission
	}
	if _, ok := m["due_at"]; ok {
		return RecordAssignment
	}
	return RecordGeneric
}

// nameKeys are identity fields substituted with the pseudonym wherever
// they appear next to an id.
var nameKeys = map[string]bool{
	"name":          true,
	"display_name":  true,
	"short_name":    true,
	"sortable_name": true,
	"user_name":     true,
}

// mailKeys are substituted with the pseudonymous mailbox form.
var mailKeys = map[string]bool{
	"email":    true,
	"login_id": true,
}

// nulledUserKeys are identity fields a user record loses outright.
var nulledUserKeys = map[string]bool{
	"sis_user_id":    true,
	"integration_id": true,
	"avatar_url":     true,
	"bio":            true,
	"time_zone":      true,
	"locale":         true,
}

// preservedUserKeys survive a user record untouched.
var preservedUserKeys = map[string]bool{
	"id":          true,
	"enrollments": true,
	"role":        true,
	"created_at":  true,
	"updated_at":  true,
}

func (a *Anonymizer) anonymizeUser(m map[string]any) map[string]any {
	id := m["id"]
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case nameKeys[k]:
			out[k] = a.PseudonymFor(id)
		case mailKeys[k]:
			out[k] = a.emailFor(id)
		case nulledUserKeys[k]:
			out[k] = nil
		case preservedUserKeys[k]:
			out[k] = v
		default:
			if s, ok := v.(string); ok && len(s) > longStringLimit {
				out[k] = redacted
			} else {
				out[k] = v
			}
		}
	}
	return out
}

func (a *Anonymizer) anonymizeEntry(m map[string]any) map[string]any {
	id := entryUserID(m)
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "user_name", "display_name":
			out[k] = a.PseudonymFor(id)
		case "author", "editor":
			out[k] = a.AnonymizeAs(v, RecordUser)
		case "message":
			if s, ok := v.(string); ok {
				out[k] = a.ScrubText(s)
			} else {
				out[k] = v
			}
		case "recent_replies", "replies":
			out[k] = a.AnonymizeAs(v, RecordDiscussionEntry)
		default:
			out[k] = a.AnonymizeAs(v, RecordAuto)
		}
	}
	return out
}

func (a *Anonymizer) anonymizeSubmission(m map[string]any) map[string]any {
	id := entryUserID(m)
	label := contentRedacted
	if p := a.PseudonymFor(id); p != redacted {
		label = fmt.Sprintf("[CONTENT_REDACTED_FOR_%s]", p)
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "user":
			out[k] = a.AnonymizeAs(v, RecordUser)
		case "body", "url", "preview_url", "attachments":
			if v == nil {
				out[k] = nil
			} else {
				out[k] = label
			}
		default:
			out[k] = a.AnonymizeAs(v, RecordAuto)
		}
	}
	return out
}

func (a *Anonymizer) anonymizeAssignment(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "description" {
			if s, ok := v.(string); ok && len(s) > descriptionLimit {
				out[k] = longDescription
				continue
			}
		}
		out[k] = v
	}
	return out
}

func (a *Anonymizer) anonymizeGeneric(m map[string]any) map[string]any {
	id, hasID := siblingID(m)
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case nameKeys[k] || k == "sis_user_id":
			if hasID {
				out[k] = a.PseudonymFor(id)
			} else {
				out[k] = redacted
			}
		case mailKeys[k]:
			if hasID {
				out[k] = a.emailFor(id)
			} else {
				out[k] = redacted
			}
		default:
			out[k] = a.AnonymizeAs(v, RecordAuto)
		}
	}
	return out
}

// entryUserID finds the identity an entry or submission belongs to.
func entryUserID(m map[string]any) any {
	if v, ok := m["user_id"]; ok && v != nil {
		return v
	}
	if u, ok := m["user"].(map[string]any); ok {
		if v, ok := u["id"]; ok {
			return v
		}
	}
	return nil
}

// siblingID prefers user_id over id for generic records: a record that
// references a user carries the user's identity, not its own.
func siblingID(m map[string]any) (any, bool) {
	if v, ok := m["user_id"]; ok && v != nil {
		return v, true
	}
	if v, ok := m["id"]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// idString renders a JSON scalar ID to its canonical decimal string.
func idString(id any) (string, bool) {
	switch t := id.(type) {
	case nil:
		return "", false
	case string:
		if t == "" || t == redacted {
			return "", false
		}
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// Stats reports pseudonym-cache usage, for the debug surface.
type Stats struct {
	Pseudonyms int    `json:"pseudonyms"`
	Prefix     string `json:"prefix"`
}

// Stats returns a snapshot of the pseudonym cache.
func (a *Anonymizer) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Stats{Pseudonyms: len(a.pseudonyms), Prefix: a.prefix}
}

// ClearCache drops the pseudonym cache. Future pseudonyms are unchanged:
// the derivation is stateless.
func (a *Anonymizer) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pseudonyms = make(map[string]string)
}
