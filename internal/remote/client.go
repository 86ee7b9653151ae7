// Package remote talks to the hosted REST store: a family_data table
// of (family_id, key, value, updated_at) rows plus a users table for
// auth. It is the mirror target of the local cache, never the
// synchronous read path.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// familyDataRow mirrors the backend table shape.
type familyDataRow struct {
	FamilyID  string          `json:"family_id"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt string          `json:"updated_at"`
}

// User is a row of the backend users table. The password column holds
// the bcrypt hash, never a plaintext password.
type User struct {
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
	FamilyID string `json:"family_id"`
	Role     string `json:"role"`
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Fetch reads one key of a family. The second return is false when the
// backend has no row for it.
func (c *Client) Fetch(ctx context.Context, familyID, key string) (json.RawMessage, bool, error) {
	path := "/family_data?family_id=eq." + url.QueryEscape(familyID) +
		"&key=eq." + url.QueryEscape(key) + "&select=value"
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, false, err
	}

	var rows []struct {
		Value json.RawMessage `json:"value"`
	}
	if err := c.do(req, &rows); err != nil {
		return nil, false, fmt.Errorf("fetch %s/%s: %w", familyID, key, err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0].Value, true, nil
}

// FetchAll pulls every key of a family, used by the full sync at
// session start.
func (c *Client) FetchAll(ctx context.Context, familyID string) (map[string]json.RawMessage, error) {
	path := "/family_data?family_id=eq." + url.QueryEscape(familyID) + "&select=key,value"
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var rows []familyDataRow
	if err := c.do(req, &rows); err != nil {
		return nil, fmt.Errorf("fetch all for %s: %w", familyID, err)
	}

	out := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Push upserts one key. It tries PATCH on the existing row first and
// falls back to POST when no row matched, so the caller never needs to
// know whether the key exists remotely.
func (c *Client) Push(ctx context.Context, familyID, key string, value json.RawMessage) error {
	now := time.Now().UTC().Format(time.RFC3339)

	patchBody, err := json.Marshal(map[string]any{
		"value":      value,
		"updated_at": now,
	})
	if err != nil {
		return fmt.Errorf("marshal patch body: %w", err)
	}

	path := "/family_data?family_id=eq." + url.QueryEscape(familyID) +
		"&key=eq." + url.QueryEscape(key)
	req, err := c.newRequest(ctx, http.MethodPatch, path, patchBody)
	if err != nil {
		return err
	}
	// Ask for the updated rows back so an empty array reveals that
	// nothing matched.
	req.Header.Set("Prefer", "return=representation")

	var updated []familyDataRow
	if err := c.do(req, &updated); err != nil {
		return fmt.Errorf("patch %s/%s: %w", familyID, key, err)
	}
	if len(updated) > 0 {
		return nil
	}

	postBody, err := json.Marshal(familyDataRow{
		FamilyID:  familyID,
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal post body: %w", err)
	}
	req, err = c.newRequest(ctx, http.MethodPost, "/family_data", postBody)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("post %s/%s: %w", familyID, key, err)
	}
	return nil
}

// Remove deletes one key of a family.
func (c *Client) Remove(ctx context.Context, familyID, key string) error {
	path := "/family_data?family_id=eq." + url.QueryEscape(familyID) +
		"&key=eq." + url.QueryEscape(key)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("remove %s/%s: %w", familyID, key, err)
	}
	return nil
}

// Ping probes the backend with a minimal read.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/family_data?select=key&limit=1", nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("ping backend: %w", err)
	}
	return nil
}

// UserByUsername looks up a credential row by exact username.
func (c *Client) UserByUsername(ctx context.Context, username string) (User, bool, error) {
	path := "/users?username=eq." + url.QueryEscape(username) + "&select=*"
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return User{}, false, err
	}

	var rows []User
	if err := c.do(req, &rows); err != nil {
		return User{}, false, fmt.Errorf("fetch user %s: %w", username, err)
	}
	if len(rows) == 0 {
		return User{}, false, nil
	}
	return rows[0], true, nil
}

// CreateUser mirrors a new credential row to the backend.
func (c *Client) CreateUser(ctx context.Context, u User) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/users", body)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return nil
}

// DeleteUser removes a credential row, scoped by family.
func (c *Client) DeleteUser(ctx context.Context, username, familyID string) error {
	path := "/users?username=eq." + url.QueryEscape(username) +
		"&family_id=eq." + url.QueryEscape(familyID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("delete user %s: %w", username, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, truncate(body, 200))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
