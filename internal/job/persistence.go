package job

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Store is the small namespaced key/value interface the dispatcher core
// depends on. Production is backed by Redis (internal/store), tests by
// an in-memory map; the core never imports either directly.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ApplyNamespaceIfAbsent returns key unchanged if it already starts with
// "ns/", otherwise it returns "ns/key". Idempotent by construction (P7).
func ApplyNamespaceIfAbsent(ns, key string) string {
	prefix := ns + "/"
	if strings.HasPrefix(key, prefix) {
		return key
	}
	return prefix + key
}

// SetEntry builds a JobEntry from the given request/state/outcome,
// JSON-then-base64 encodes it, and writes it under the namespaced key.
// It returns false (never an error) so callers can log-and-continue per
// the "persistence is advisory" rule - a failed write must never abort
// admission or execution.
func SetEntry(ctx context.Context, s Store, ns, jobID string, req Request, state State, outcome Outcome, serverID string) bool {
	entry := Entry{
		Request:  req,
		State:    state,
		Outcome:  outcome,
		ServerID: serverID,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return false
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	key := ApplyNamespaceIfAbsent(ns, jobID)
	if err := s.Set(ctx, key, []byte(encoded)); err != nil {
		return false
	}
	return true
}

// GetEntry reads and decodes the JobEntry for jobID. Absence and decode
// failure both return (nil, nil) - from the caller's perspective a
// corrupt record is indistinguishable from "no record yet".
func GetEntry(ctx context.Context, s Store, ns, jobID string) (*Entry, error) {
	key := ApplyNamespaceIfAbsent(ns, jobID)
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, nil
	}
	var entry Entry
	if err := json.Unmarshal(decoded, &entry); err != nil {
		return nil, nil
	}
	return &entry, nil
}
