package wire

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RegistryCodec talks to an external schema-registry service over HTTP. The
// service owns the compiled message schemas and exposes two endpoints:
// POST <base>/api/encode {json_data, message_type} -> {protobuf_bytes}
// POST <base>/api/decode {protobuf_bytes, message_type} -> {json_data}
// protobuf_bytes is standard base64 on both legs.
type RegistryCodec struct {
	BaseURL    string
	APIKey     string // optional, forwarded as X-API-Key
	HTTPClient *http.Client
}

type encodeRequest struct {
	JSONData    map[string]any `json:"json_data"`
	MessageType string         `json:"message_type"`
}

type encodeResponse struct {
	ProtobufBytes string `json:"protobuf_bytes"`
}

type decodeRequest struct {
	ProtobufBytes string `json:"protobuf_bytes"`
	MessageType   string `json:"message_type"`
}

type decodeResponse struct {
	JSONData map[string]any `json:"json_data"`
}

func (c *RegistryCodec) Encode(ctx context.Context, messageType string, payload map[string]any) ([]byte, error) {
	var out encodeResponse
	err := c.post(ctx, "/api/encode", encodeRequest{JSONData: payload, MessageType: messageType}, &out)
	if err != nil {
		return nil, fmt.Errorf("registry encode %s: %w", messageType, err)
	}
	raw, err := base64.StdEncoding.DecodeString(out.ProtobufBytes)
	if err != nil {
		return nil, fmt.Errorf("registry encode %s: bad base64 in response: %w", messageType, err)
	}
	return raw, nil
}

func (c *RegistryCodec) Decode(ctx context.Context, messageType string, data []byte) (map[string]any, error) {
	req := decodeRequest{
		ProtobufBytes: base64.StdEncoding.EncodeToString(data),
		MessageType:   messageType,
	}
	var out decodeResponse
	if err := c.post(ctx, "/api/decode", req, &out); err != nil {
		return nil, fmt.Errorf("registry decode %s: %w", messageType, err)
	}
	if out.JSONData == nil {
		return nil, fmt.Errorf("registry decode %s: empty json_data", messageType)
	}
	return out.JSONData, nil
}

func (c *RegistryCodec) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("registry status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
