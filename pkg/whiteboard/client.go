// Package whiteboard implements the §6.4 REST client for the remote
// append-only store that backs the indirect channel, plus an in-memory
// test double (doubles.go) standing in for the §4.7 external collaborator.
package whiteboard

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client is a thin REST client over the §6.4 whiteboard contract.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL, e.g. "http://host:port".
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

// NewWithHTTPClient builds a Client using a caller-supplied *http.Client,
// letting tests swap in one pointed at an httptest.Server.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, http: hc}
}

type postRequest struct {
	Data string `json:"data"`
}

type postResponse struct {
	Index     int    `json:"index"`
	Timestamp string `json:"timestamp"`
}

// Post appends data under hashtag, returning the monotonic index and
// server timestamp the whiteboard assigned it.
func (c *Client) Post(hashtag string, data []byte) (index int, timestamp string, err error) {
	body, err := json.Marshal(postRequest{Data: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return 0, "", fmt.Errorf("whiteboard: marshal post body: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+"/post/"+hashtag, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("whiteboard: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, "", fmt.Errorf("whiteboard: post %s: status %d", hashtag, resp.StatusCode)
	}

	var out postResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, "", fmt.Errorf("whiteboard: decode post response: %w", err)
	}
	return out.Index, out.Timestamp, nil
}

type getResponse struct {
	Data      string `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Get fetches the single entry at index.
func (c *Client) Get(hashtag string, index int) (data []byte, timestamp string, err error) {
	resp, err := c.http.Get(fmt.Sprintf("%s/get/%s/%d", c.baseURL, hashtag, index))
	if err != nil {
		return nil, "", fmt.Errorf("whiteboard: get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("whiteboard: get %s/%d: status %d", hashtag, index, resp.StatusCode)
	}

	var out getResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", fmt.Errorf("whiteboard: decode get response: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, "", fmt.Errorf("whiteboard: decode get payload: %w", err)
	}
	return raw, out.Timestamp, nil
}

type getRangeResponse struct {
	Data      []string `json:"data"`
	Length    int      `json:"length"`
	Timestamp string   `json:"timestamp"`
}

// GetRange fetches entries [start, stop]. stop=-1 means "up to latest";
// per §6.4, negative indices count from the tail.
func (c *Client) GetRange(hashtag string, start, stop int) (data [][]byte, length int, timestamp string, err error) {
	resp, err := c.http.Get(fmt.Sprintf("%s/get/%s/%d/%d", c.baseURL, hashtag, start, stop))
	if err != nil {
		return nil, 0, "", fmt.Errorf("whiteboard: get range: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, "", fmt.Errorf("whiteboard: get range %s/%d/%d: status %d", hashtag, start, stop, resp.StatusCode)
	}

	var out getRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, "", fmt.Errorf("whiteboard: decode get range response: %w", err)
	}

	decoded := make([][]byte, 0, len(out.Data))
	for _, s := range out.Data {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, 0, "", fmt.Errorf("whiteboard: decode range entry: %w", err)
		}
		decoded = append(decoded, raw)
	}
	return decoded, out.Length, out.Timestamp, nil
}

type latestResponse struct {
	Latest int `json:"latest"`
}

// Latest returns the current latest index for hashtag.
func (c *Client) Latest(hashtag string) (int, error) {
	resp, err := c.http.Get(c.baseURL + "/latest/" + hashtag)
	if err != nil {
		return 0, fmt.Errorf("whiteboard: latest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("whiteboard: latest %s: status %d", hashtag, resp.StatusCode)
	}

	var out latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("whiteboard: decode latest response: %w", err)
	}
	return out.Latest, nil
}

type afterResponse struct {
	Index int `json:"index"`
}

// After returns the first index stamped after timestamp.
func (c *Client) After(hashtag, timestamp string) (int, error) {
	resp, err := c.http.Get(fmt.Sprintf("%s/after/%s/%s", c.baseURL, hashtag, timestamp))
	if err != nil {
		return 0, fmt.Errorf("whiteboard: after: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("whiteboard: after %s/%s: status %d", hashtag, timestamp, resp.StatusCode)
	}

	var out afterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("whiteboard: decode after response: %w", err)
	}
	return out.Index, nil
}

type resizeResponse struct {
	MemUsage int `json:"mem_usage"`
}

// Resize asks the whiteboard to trim itself down to threshold bytes of
// memory usage, returning the usage after trimming.
func (c *Client) Resize(threshold int) (int, error) {
	resp, err := c.http.Get(fmt.Sprintf("%s/resize/%d", c.baseURL, threshold))
	if err != nil {
		return 0, fmt.Errorf("whiteboard: resize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("whiteboard: resize %d: status %d", threshold, resp.StatusCode)
	}

	var out resizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("whiteboard: decode resize response: %w", err)
	}
	return out.MemUsage, nil
}

// Save asks the whiteboard to persist itself. sync is optional; pass nil
// for the bare /save form.
func (c *Client) Save(sync *bool) error {
	path := "/save"
	if sync != nil {
		path += "/" + strconv.FormatBool(*sync)
	}
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("whiteboard: save: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whiteboard: save: status %d", resp.StatusCode)
	}
	return nil
}

// Info fetches the whiteboard's free-form status payload.
func (c *Client) Info() (map[string]interface{}, error) {
	resp, err := c.http.Get(c.baseURL + "/info")
	if err != nil {
		return nil, fmt.Errorf("whiteboard: info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whiteboard: info: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whiteboard: read info response: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("whiteboard: decode info response: %w", err)
	}
	return out, nil
}
