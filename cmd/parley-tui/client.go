// ABOUTME: Thin HTTP client for the parley-gateway API
// ABOUTME: Covers session open, send (blocking), suggestions, chain, and feedback

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// Generous timeout: blocking sends wait for the dispatch to finish
		http: &http.Client{Timeout: 90 * time.Second},
	}
}

type agentInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Specialties []string `json:"specialties"`
	IsActive    bool     `json:"is_active"`
}

type openSessionResult struct {
	SessionID string    `json:"session_id"`
	Agent     agentInfo `json:"agent"`
	Greeting  string    `json:"greeting"`
}

type chainMetaView struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

type entryResult struct {
	ID        string         `json:"id"`
	Sender    string         `json:"sender"`
	Text      string         `json:"text"`
	ChainMeta *chainMetaView `json:"chain_meta"`
	CanRate   bool           `json:"can_rate"`
}

type suggestionView struct {
	AgentID string `json:"agent_id"`
	Label   string `json:"label"`
	Reason  string `json:"reason"`
}

func (c *apiClient) openSession(agentID string) (*openSessionResult, error) {
	var result openSessionResult
	err := c.do("POST", "/api/sessions", map[string]string{"agent_id": agentID}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) send(sessionID, text string) (*entryResult, error) {
	var result entryResult
	path := fmt.Sprintf("/api/sessions/%s/send", sessionID)
	err := c.do("POST", path, map[string]any{"text": text, "wait": true}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) suggest(sessionID, input string) ([]suggestionView, error) {
	var result []suggestionView
	path := fmt.Sprintf("/api/sessions/%s/suggest?q=%s", sessionID, url.QueryEscape(input))
	if err := c.do("GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *apiClient) enableChain(sessionID, secondaryAgentID string) error {
	path := fmt.Sprintf("/api/sessions/%s/chain", sessionID)
	return c.do("POST", path, map[string]string{"secondary_agent_id": secondaryAgentID}, nil)
}

func (c *apiClient) disableChain(sessionID string) error {
	return c.do("DELETE", fmt.Sprintf("/api/sessions/%s/chain", sessionID), nil, nil)
}

func (c *apiClient) submitFeedback(sessionID, messageID string, satisfied bool) error {
	return c.do("POST", "/api/feedback", map[string]any{
		"session_id": sessionID,
		"message_id": messageID,
		"satisfied":  satisfied,
	}, nil)
}

// do runs one JSON request. A non-2xx status becomes an error carrying the
// server's notice when one is present.
func (c *apiClient) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
