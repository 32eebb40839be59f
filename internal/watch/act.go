package watch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Actor executes steward decisions against the admin API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor with the given API base URL and admin key.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Act carries out a decision. ActionNone is a no-op.
func (a *Actor) Act(d Decision) error {
	switch d.Action {
	case ActionNone:
		return nil
	case ActionBlackTide:
		return a.post("/api/v1/blacktide", nil)
	case ActionCheckpoint:
		return a.post("/api/v1/checkpoint", nil)
	case ActionSetSpeed:
		return a.post("/api/v1/speed", map[string]float64{"speed": d.Speed})
	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}
}

// post sends an authenticated POST with an optional JSON body.
func (a *Actor) post(path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, a.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	return nil
}
