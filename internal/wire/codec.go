// Package wire provides the schema-typed codec facade the gateway uses to
// turn request envelopes into upstream bytes and upstream frames back into
// generic maps. The schema registry itself lives outside this process; the
// gateway only ever sees encode/decode.
package wire

import (
	"context"
	"encoding/json"
	"fmt"
)

// Codec encodes an envelope for a given message type and decodes raw frame
// bytes back into a generic map.
type Codec interface {
	Encode(ctx context.Context, messageType string, payload map[string]any) ([]byte, error)
	Decode(ctx context.Context, messageType string, data []byte) (map[string]any, error)
}

// JSONCodec is the pass-through codec: envelopes travel as canonical JSON
// bytes. It is the default when no external registry is configured and is
// what tests run against.
type JSONCodec struct{}

func (JSONCodec) Encode(_ context.Context, messageType string, payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("encode %s: empty payload", messageType)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", messageType, err)
	}
	return b, nil
}

func (JSONCodec) Decode(_ context.Context, messageType string, data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode %s: empty frame", messageType)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", messageType, err)
	}
	return out, nil
}
