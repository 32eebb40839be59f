// Package entropy sources the boot seed. Everything downstream of the
// seed is deterministic, so this is the one place true randomness enters:
// random.org when an API key is configured, crypto/rand otherwise.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client fetches seed material from random.org.
type Client struct {
	apiKey string
	client *http.Client
}

// NewClient creates a random.org client. Returns nil if apiKey is empty;
// a nil Client falls back to crypto/rand.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether the client has an API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Seed returns a world seed. The random.org path can fail (network, quota,
// bad key); callers get the crypto/rand fallback in that case rather than
// an error, since a seed is always needed.
func (c *Client) Seed() int64 {
	if !c.Enabled() {
		return CryptoSeed()
	}
	seed, err := c.fetchSeed()
	if err != nil {
		slog.Warn("random.org seed fetch failed, using crypto/rand", "error", err)
		return CryptoSeed()
	}
	slog.Info("world seed drawn from random.org")
	return seed
}

// fetchSeed asks random.org for two 32-bit integers and packs them into
// an int64.
func (c *Client) fetchSeed() (int64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]any{
			"apiKey": c.apiKey,
			"n":      2,
			"min":    0,
			"max":    (1 << 31) - 1,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.client.Post("https://api.random.org/json-rpc/4/invoke", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []int64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("parse response: %w", err)
	}
	if result.Error != nil {
		return 0, fmt.Errorf("api error: %s", result.Error.Message)
	}
	if len(result.Result.Random.Data) < 2 {
		return 0, fmt.Errorf("short response: %d integers", len(result.Result.Random.Data))
	}

	hi, lo := result.Result.Random.Data[0], result.Result.Random.Data[1]
	return hi<<31 | lo, nil
}

// CryptoSeed draws a non-negative seed from crypto/rand.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the platform is broken; fall back
		// to wall clock rather than abort.
		return time.Now().UnixNano()
	}
	n := binary.LittleEndian.Uint64(buf[:])
	return int64(n >> 1)
}
