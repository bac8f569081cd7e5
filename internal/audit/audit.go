// Package audit persists one flat JSON file per proxied request so every
// interaction with an upstream can be inspected after the fact.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StreamPlaceholder is recorded in place of the response body when the
// upstream reply is streamed. The chunked content is never captured;
// buffering it would defeat the point of streaming.
var StreamPlaceholder = json.RawMessage(`{"object":"stream","detail":"streaming response, content not captured"}`)

type Record struct {
	Timestamp int64           `json:"timestamp"`
	Endpoint  string          `json:"endpoint"`
	Request   json.RawMessage `json:"request"`
	Response  json.RawMessage `json:"response"`
}

type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create audit log directory %s: %w", dir, err)
	}

	return &Store{dir: dir}, nil
}

// Write persists one record keyed by the capture time in milliseconds
// combined with the endpoint path, and returns the file path. An empty
// request serializes as an empty object.
func (s *Store) Write(endpoint string, request, response json.RawMessage) (string, error) {
	return s.write(time.Now().UnixMilli(), endpoint, request, response)
}

func (s *Store) write(ts int64, endpoint string, request, response json.RawMessage) (string, error) {
	if len(request) == 0 {
		request = json.RawMessage(`{}`)
	}

	r := &Record{
		Timestamp: ts,
		Endpoint:  endpoint,
		Request:   request,
		Response:  response,
	}

	bs, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%d.json", strings.ReplaceAll(endpoint, "/", "_"), ts)
	path := filepath.Join(s.dir, name)

	// O_EXCL fails closed if two writers ever land on the same key
	// instead of silently clobbering the earlier record.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("unable to create audit record %s: %w", path, err)
	}

	if _, err := f.Write(bs); err != nil {
		f.Close()
		return "", err
	}

	return path, f.Close()
}
