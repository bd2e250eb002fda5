// SPDX-License-Identifier: MIT

package state

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeSnapshot serializes a full SessionState to MessagePack, the primary
// snapshot format pushed to v2 subscribers and written to the snapshot key.
func EncodeSnapshot(s *SessionState) ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("msgpack snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot deserializes a MessagePack snapshot.
func DecodeSnapshot(data []byte) (*SessionState, error) {
	var s SessionState
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("msgpack snapshot: %w", err)
	}
	return &s, nil
}

// EncodeLegacySnapshot serializes a snapshot as gzip-compressed JSON, the
// v1 ReceiveMessage payload.
func EncodeLegacySnapshot(s *SessionState) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(s); err != nil {
		return nil, fmt.Errorf("legacy snapshot encode: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("legacy snapshot close: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeLegacySnapshot deserializes a gzip-compressed JSON snapshot.
func DecodeLegacySnapshot(data []byte) (*SessionState, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("legacy snapshot open: %w", err)
	}
	defer gz.Close()

	var s SessionState
	if err := json.NewDecoder(gz).Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("legacy snapshot decode: %w", err)
	}
	return &s, nil
}
