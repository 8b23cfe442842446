// Package artifact stores the JSON documents the pipeline stages exchange.
//
// Every artifact lives under a key of the form agreements/<id>/<kind>.json,
// mirroring the object-store layout the artifacts were designed for. Writes
// are whole-document replacements: re-running a stage overwrites its output,
// last writer wins.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
)

// Artifact kinds produced by the pipeline.
const (
	KindNormalized = "normalized"
	KindStructure  = "structure"
	KindMatches    = "clause_matches"
	KindRiskReport = "risk_report"
	KindRedline    = "redline"
)

// ErrNotFound reports a missing artifact.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "artifact: not found" }

// Key builds the store key for one agreement's artifact of the given kind.
func Key(agreementID, kind string) string {
	return fmt.Sprintf("agreements/%s/%s.json", agreementID, kind)
}

// Store is a keyed JSON document store.
type Store interface {
	// Get reads the raw document at key. Returns ErrNotFound when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the document at key.
	Put(ctx context.Context, key string, data []byte) error

	// List returns all keys with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// GetJSON reads and unmarshals the artifact at key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("artifact %s: decode: %w", key, err)
	}
	return nil
}

// PutJSON marshals v and stores it at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact %s: encode: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}
