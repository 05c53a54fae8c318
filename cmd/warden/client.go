// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// defaultServer resolves the control API address: the WARDEN_SERVER
// environment variable, or the daemon's default control listener.
func defaultServer() string {
	if server := os.Getenv("WARDEN_SERVER"); server != "" {
		return server
	}
	return "http://127.0.0.1:8643"
}

// controlClient is a thin JSON client for the daemon's control API.
type controlClient struct {
	base string
	http *http.Client
}

func newControlClient(server string) *controlClient {
	return &controlClient{
		base: strings.TrimRight(server, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// websocketURL rewrites the base for a websocket endpoint.
func (c *controlClient) websocketURL(path string) string {
	base := c.base
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}

func (c *controlClient) do(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var failure struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&failure) == nil && failure.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, failure.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *controlClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *controlClient) post(path string, in, out any) error {
	return c.do(http.MethodPost, path, in, out)
}

func (c *controlClient) delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}
