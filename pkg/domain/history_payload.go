package domain

import "encoding/json"

// HistoryPayload is one resolved value snapshot destined for a history
// archive. The kind label names the storage kind the raw JSON decodes as, so
// archive consumers need no catalog access to interpret the bytes: scalar
// kinds decode as Value, the relation kind as Link.
type HistoryPayload struct {
	defined bool
	kind    StorageKind
	raw     json.RawMessage
}

// NewHistoryPayload builds a payload from raw JSON already encoded for the
// given kind. The bytes are cloned so callers cannot mutate shared state. A
// nil slice yields a defined but empty payload; use UndefinedHistoryPayload
// for "not set".
func NewHistoryPayload(kind StorageKind, raw json.RawMessage) HistoryPayload {
	payload := HistoryPayload{defined: true, kind: kind}
	if raw != nil {
		payload.raw = cloneRawMessage(raw)
	}
	return payload
}

// NewHistoryPayloadFromValue marshals a typed snapshot into a HistoryPayload
// labeled with the field's storage kind.
func NewHistoryPayloadFromValue[T any](kind StorageKind, value T) (HistoryPayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return HistoryPayload{}, err
	}
	return NewHistoryPayload(kind, raw), nil
}

// UndefinedHistoryPayload returns an uninitialized payload wrapper.
func UndefinedHistoryPayload() HistoryPayload {
	return HistoryPayload{}
}

// Defined reports whether the payload has been initialized.
func (p HistoryPayload) Defined() bool {
	return p.defined
}

// Kind returns the storage kind the raw JSON decodes as. Undefined payloads
// carry an empty kind.
func (p HistoryPayload) Kind() StorageKind {
	return p.kind
}

// IsEmpty reports whether the payload contains no bytes.
func (p HistoryPayload) IsEmpty() bool {
	if !p.defined {
		return true
	}
	return len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes. Nil is returned
// when the payload is undefined or empty.
func (p HistoryPayload) Raw() json.RawMessage {
	if !p.defined || len(p.raw) == 0 {
		return nil
	}
	return cloneRawMessage(p.raw)
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
