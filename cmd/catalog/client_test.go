package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
)

// fakeAPI mimics the session/CSRF handshake of the real server.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "s1", Path: "/"})
		_ = json.NewEncoder(w).Encode(map[string]string{"csrf_token": "tok-s1"})
	}).Methods(http.MethodGet)
	csrfOK := func(r *http.Request) bool {
		c, err := r.Cookie("session_id")
		return err == nil && c.Value == "s1" && r.Header.Get("X-CSRF-Token") == "tok-s1"
	}
	r.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if !csrfOK(r) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"detail":"CSRF token missing or invalid"}`)
			return
		}
		if r.FormValue("username") != "alice" || r.FormValue("password") != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"invalid or expired credentials"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "T", "token_type": "bearer", "expires_in": 900})
	}).Methods(http.MethodPost)
	r.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer T" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"username": "alice"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !csrfOK(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)
	r.HandleFunc("/uploads", func(w http.ResponseWriter, r *http.Request) {
		if !csrfOK(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		f, h, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n, _ := io.Copy(io.Discard, f)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"filename": h.Filename, "content_type": h.Header.Get("Content-Type"), "size_in_bytes": n,
		})
	}).Methods(http.MethodPost)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_LoginAndMe(t *testing.T) {
	t.Parallel()
	srv := fakeAPI(t)
	ctx := context.Background()

	c, err := newClient(srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.login(ctx, "alice", "bad"); !isStatus(err, http.StatusUnauthorized) {
		t.Fatalf("want 401 apiError, got %v", err)
	}
	tok, err := c.login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok.AccessToken != "T" || tok.ExpiresIn != 900 {
		t.Fatalf("tok=%+v", tok)
	}

	c.token = tok.AccessToken
	var me map[string]string
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &me); err != nil || me["username"] != "alice" {
		t.Fatalf("me: %v %v", me, err)
	}
	if err := c.do(ctx, http.MethodDelete, "/books/1", nil, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestClient_ErrorDetail(t *testing.T) {
	t.Parallel()
	srv := fakeAPI(t)

	c, err := newClient(srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.login(context.Background(), "alice", "nope")
	ae, ok := err.(*apiError)
	if !ok || ae.Detail != "invalid or expired credentials" {
		t.Fatalf("err=%#v", err)
	}
}

func TestClient_Upload(t *testing.T) {
	t.Parallel()
	srv := fakeAPI(t)

	path := filepath.Join(t.TempDir(), "book.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 x"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := newClient(srv.URL, "T")
	if err != nil {
		t.Fatal(err)
	}
	up, err := c.upload(context.Background(), path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if up.Filename != "book.pdf" || up.ContentType != "application/pdf" || up.Size != 10 {
		t.Fatalf("upload=%+v", up)
	}
}

func TestNewClient_AddsScheme(t *testing.T) {
	t.Parallel()

	c, err := newClient("localhost:8080/", "")
	if err != nil {
		t.Fatal(err)
	}
	if c.base != "http://localhost:8080" {
		t.Fatalf("base=%q", c.base)
	}
}
