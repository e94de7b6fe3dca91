package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"arbvault/config"
	"arbvault/crypto"
	"arbvault/services/vaultd/server"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

type client struct {
	baseURL string
	globals globals
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// bearer resolves the token of a signed request: an explicit token wins,
// otherwise one is minted for --as from the configuration's secret.
func (c *client) bearer() (string, error) {
	if c.globals.token != "" {
		return c.globals.token, nil
	}
	if c.globals.signer == "" {
		return "", fmt.Errorf("signed command: pass --token or --as")
	}
	return mintToken(c.globals.configPath, c.globals.signer, 0)
}

func mintToken(configPath, rawSigner string, ttl time.Duration) (string, error) {
	signer, err := crypto.ParseAddress(rawSigner)
	if err != nil {
		return "", fmt.Errorf("signer: %w", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		return "", fmt.Errorf("read config %s: %w", configPath, err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL.Duration
	}
	return server.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, signer, ttl, time.Now())
}

func (c *client) do(method, path string, body interface{}, signed bool) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		token, err := c.bearer()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Error.Code == "" {
			return nil, &apiError{Status: resp.StatusCode, Code: "http_error", Message: string(bytes.TrimSpace(payload))}
		}
		return nil, &apiError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	return json.RawMessage(payload), nil
}

func printJSON(w io.Writer, raw json.RawMessage) {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintln(w, out.String())
}

// finish prints raw or err and returns the exit code.
func finish(stdout, stderr io.Writer, raw json.RawMessage, err error) int {
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	printJSON(stdout, raw)
	return 0
}
