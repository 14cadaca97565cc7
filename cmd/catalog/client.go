package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Detail)
}

// client talks to the catalog API. A cookie jar keeps the session the CSRF
// token is bound to.
type client struct {
	base  string
	hc    *http.Client
	token string
}

func newClient(base, token string) (*client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	base = strings.TrimRight(base, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &client{
		base:  base,
		hc:    &http.Client{Jar: jar, Timeout: 30 * time.Second},
		token: token,
	}, nil
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

// csrfToken starts (or reuses) a session and returns a token for it.
func (c *client) csrfToken(ctx context.Context) (string, error) {
	var out struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := c.send(ctx, http.MethodGet, "/auth/csrf", nil, "", &out); err != nil {
		return "", fmt.Errorf("csrf: %w", err)
	}
	return out.CSRFToken, nil
}

// do sends an optional JSON body and decodes a JSON reply into out.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	var ct string
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body, ct = bytes.NewReader(b), "application/json"
	}
	return c.send(ctx, method, path, body, ct, out)
}

func (c *client) send(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if !safeMethod(method) {
		tok, err := c.csrfToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("X-CSRF-Token", tok)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var d struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &d) != nil || d.Detail == "" {
			d.Detail = strings.TrimSpace(string(raw))
		}
		return &apiError{Status: resp.StatusCode, Detail: d.Detail}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type tokenReply struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *client) login(ctx context.Context, username, password string) (tokenReply, error) {
	form := url.Values{"username": {username}, "password": {password}}
	var out tokenReply
	err := c.send(ctx, http.MethodPost, "/auth/token", strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded", &out)
	return out, err
}

type uploadReply struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size_in_bytes"`
}

// upload posts a file as multipart field "file". PDFs are labelled by extension.
func (c *client) upload(ctx context.Context, path string) (uploadReply, error) {
	data, err := readAll(path)
	if err != nil {
		return uploadReply{}, err
	}
	ct := "application/octet-stream"
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		ct = "application/pdf"
	}
	name := filepath.Base(path)
	if path == "-" {
		name = "stdin.pdf"
		ct = "application/pdf"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", ct)
	pw, err := mw.CreatePart(h)
	if err != nil {
		return uploadReply{}, err
	}
	if _, err := pw.Write(data); err != nil {
		return uploadReply{}, err
	}
	if err := mw.Close(); err != nil {
		return uploadReply{}, err
	}

	var out uploadReply
	err = c.send(ctx, http.MethodPost, "/uploads", &buf, mw.FormDataContentType(), &out)
	return out, err
}

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func isStatus(err error, code int) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == code
}
