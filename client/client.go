package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Key is a stored key as the server reports it. Big integers are decimal
// strings.
type Key struct {
	ID          int64     `json:"id"`
	BitLength   int       `json:"bit_length"`
	P           string    `json:"p"`
	Q           string    `json:"q"`
	E           string    `json:"e"`
	N           string    `json:"n"`
	D           string    `json:"d"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Client talks to a tinyrsa server.
type Client struct {
	baseURL string
	http    *http.Client
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return "server returned " + strconv.Itoa(e.StatusCode) + ": " + e.Message
}

// New returns a client for the server at baseURL. A nil httpClient means
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// GenerateKey asks the server for a new key with bitLength bit primes.
func (c *Client) GenerateKey(ctx context.Context, bitLength int) (*Key, error) {
	var key Key
	if err := c.do(ctx, http.MethodPost, "/keys", map[string]int{"bit_length": bitLength}, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// ImportKey stores a key built from decimal p, q and e.
func (c *Client) ImportKey(ctx context.Context, p, q, e string) (*Key, error) {
	var key Key
	if err := c.do(ctx, http.MethodPost, "/keys/import", map[string]string{"p": p, "q": q, "e": e}, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// GetKey fetches one key.
func (c *Client) GetKey(ctx context.Context, id int64) (*Key, error) {
	var key Key
	if err := c.do(ctx, http.MethodGet, keyPath(id, ""), nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// ListKeys fetches every key.
func (c *Client) ListKeys(ctx context.Context) ([]*Key, error) {
	var keys []*Key
	if err := c.do(ctx, http.MethodGet, "/keys", nil, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteKey removes a key.
func (c *Client) DeleteKey(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, keyPath(id, ""), nil, nil)
}

// Encrypt returns the \xHH armored ciphertext of plain.
func (c *Client) Encrypt(ctx context.Context, id int64, plain string) (string, error) {
	var resp struct {
		Cipher string `json:"cipher"`
	}
	err := c.do(ctx, http.MethodPost, keyPath(id, "/encrypt"), map[string]string{"plain": plain}, &resp)
	return resp.Cipher, err
}

// Decrypt returns the plaintext of an armored ciphertext.
func (c *Client) Decrypt(ctx context.Context, id int64, cipher string) (string, error) {
	var resp struct {
		Plain string `json:"plain"`
	}
	err := c.do(ctx, http.MethodPost, keyPath(id, "/decrypt"), map[string]string{"cipher": cipher}, &resp)
	return resp.Plain, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func keyPath(id int64, suffix string) string {
	return "/keys/" + strconv.FormatInt(id, 10) + suffix
}
