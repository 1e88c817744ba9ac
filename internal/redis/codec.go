package redis

import (
	"encoding/json"
	"fmt"
)

// schemaVersion is the current version of serialized records. Records are
// stored as a versioned envelope so format changes are explicit at the
// store boundary.
const schemaVersion = 1

type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// DecodeError is returned when a stored record cannot be decoded
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding stored record: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decoding stored record: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// encode wraps a record in the versioned envelope
func encode(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}
	env, err := json.Marshal(envelope{Version: schemaVersion, Data: data})
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}
	return string(env), nil
}

// decode unwraps the versioned envelope into a record
func decode(raw string, v interface{}) error {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return &DecodeError{Reason: "invalid envelope", Err: err}
	}
	if env.Version != schemaVersion {
		return &DecodeError{Reason: fmt.Sprintf("unsupported schema version %d", env.Version)}
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return &DecodeError{Reason: "invalid record payload", Err: err}
	}
	return nil
}
