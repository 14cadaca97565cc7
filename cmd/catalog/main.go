// Command catalog is a CLI client for the library catalog API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "libcatalog")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "libcatalog")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// tokenExpiry reads exp without verifying the signature; the server does that.
// expiresIn is the fallback when the token carries no exp.
func tokenExpiry(raw string, expiresIn int64) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	return time.Now().Add(15 * time.Minute)
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `catalog CLI
Usage:
  catalog [--addr HOST:PORT] <cmd> [args]

Commands:
  version
  register   -u <username> -p <password>
  login      -u <username> -p <password>        (saves token)
  whoami
  authors    [--limit N] [--offset N]
  author-add --name <full name> [--country <c>]
  books      [--limit N] [--offset N]
  book       --id <id>
  book-add   --title <t> --author <id> [--year Y] [--genre G] [--desc D]
  book-edit  --id <id> [--title T] [--author ID] [--year Y] [--genre G] [--desc D]
  book-rm    --id <id>
  upload     --file <path.pdf | ->
`)
	os.Exit(2)
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: status=%d msg=%s\n", ae.Status, ae.Detail)
		if ae.Status == http.StatusUnauthorized {
			fmt.Fprintln(os.Stderr, "hint: run `catalog login` again")
		}
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the configured server.
func main() {
	global := pflag.NewFlagSet("catalog", pflag.ContinueOnError)
	addr := global.String("addr", envOr("LIBCAT_ADDR", "localhost:8080"), "server addr")
	global.SetInterspersed(false)
	global.Usage = usage
	if err := global.Parse(os.Args[1:]); err != nil {
		usage()
	}
	if global.NArg() < 1 {
		usage()
	}
	cmd, args := global.Arg(0), global.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cmd == "version" {
		fmt.Printf("catalog %s (%s)\n", version, buildDate)
		return
	}

	// commands that need no token
	switch cmd {
	case "register", "login":
		fs := pflag.NewFlagSet(cmd, pflag.ExitOnError)
		u := fs.StringP("username", "u", "", "username")
		p := fs.StringP("password", "p", "", "password")
		_ = fs.Parse(args)
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		c, err := newClient(*addr, "")
		if err != nil {
			fail(err)
		}
		if cmd == "register" {
			var out map[string]any
			if err := c.do(ctx, http.MethodPost, "/auth/register", map[string]string{"username": *u, "password": *p}, &out); err != nil {
				fail(err)
			}
			printJSON(out)
			return
		}
		tok, err := c.login(ctx, *u, *p)
		if err != nil {
			fail(err)
		}
		if err := saveToken(tok.AccessToken, tokenExpiry(tok.AccessToken, tok.ExpiresIn)); err != nil {
			fail(err)
		}
		fmt.Println("ok")
		return
	case "authors", "books", "book":
		c, err := newClient(*addr, "")
		if err != nil {
			fail(err)
		}
		runRead(ctx, c, cmd, args)
		return
	}

	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	c, err := newClient(*addr, token)
	if err != nil {
		fail(err)
	}
	runWrite(ctx, c, cmd, args)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func pageQuery(args []string, name string) string {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	limit := fs.Int("limit", 0, "page size")
	offset := fs.Int("offset", 0, "page offset")
	_ = fs.Parse(args)
	return fmt.Sprintf("?limit=%d&offset=%d", *limit, *offset)
}

func runRead(ctx context.Context, c *client, cmd string, args []string) {
	var out any
	var err error
	switch cmd {
	case "authors":
		err = c.do(ctx, http.MethodGet, "/authors"+pageQuery(args, cmd), nil, &out)
	case "books":
		err = c.do(ctx, http.MethodGet, "/books"+pageQuery(args, cmd), nil, &out)
	case "book":
		fs := pflag.NewFlagSet(cmd, pflag.ExitOnError)
		id := fs.Int64("id", 0, "book id")
		_ = fs.Parse(args)
		err = c.do(ctx, http.MethodGet, "/books/"+strconv.FormatInt(*id, 10), nil, &out)
	}
	if err != nil {
		fail(err)
	}
	printJSON(out)
}

// bookFlags registers the editable fields and returns only those set on the command line.
func bookFlags(fs *pflag.FlagSet) func() map[string]any {
	title := fs.String("title", "", "title")
	author := fs.Int64("author", 0, "author id")
	year := fs.Int32("year", 0, "publication year")
	genre := fs.String("genre", "", "genre")
	desc := fs.String("desc", "", "description")
	return func() map[string]any {
		m := map[string]any{}
		set := func(name string, v any) {
			if fs.Changed(name) {
				m[name] = v
			}
		}
		set("title", *title)
		set("genre", *genre)
		if fs.Changed("author") {
			m["author_id"] = *author
		}
		if fs.Changed("year") {
			m["publication_year"] = *year
		}
		if fs.Changed("desc") {
			m["description"] = *desc
		}
		return m
	}
}

func runWrite(ctx context.Context, c *client, cmd string, args []string) {
	var out any
	var err error
	switch cmd {
	case "whoami":
		err = c.do(ctx, http.MethodGet, "/users/me", nil, &out)

	case "author-add":
		fs := pflag.NewFlagSet(cmd, pflag.ExitOnError)
		name := fs.String("name", "", "full name")
		country := fs.String("country", "", "country")
		_ = fs.Parse(args)
		in := map[string]any{"full_name": *name}
		if *country != "" {
			in["country"] = *country
		}
		err = c.do(ctx, http.MethodPost, "/authors", in, &out)

	case "book-add":
		fs := pflag.NewFlagSet(cmd, pflag.ExitOnError)
		fields := bookFlags(fs)
		_ = fs.Parse(args)
		err = c.do(ctx, http.MethodPost, "/books", fields(), &out)

	case "book-edit":
		fs := pflag.NewFlagSet(cmd, pflag.ExitOnError)
		id := fs.Int64("id", 0, "book id")
		fields := bookFlags(fs)
		_ = fs.Parse(args)
		err = c.do(ctx, http.MethodPut, "/books/"+strconv.FormatInt(*id, 10), fields(), &out)

	case "book-rm":
		fs := pflag.NewFlagSet(cmd, pflag.ExitOnError)
		id := fs.Int64("id", 0, "book id")
		_ = fs.Parse(args)
		if err = c.do(ctx, http.MethodDelete, "/books/"+strconv.FormatInt(*id, 10), nil, nil); err == nil {
			fmt.Println("deleted")
			return
		}

	case "upload":
		fs := pflag.NewFlagSet(cmd, pflag.ExitOnError)
		file := fs.String("file", "", "file to upload ('-'=stdin)")
		_ = fs.Parse(args)
		if *file == "" {
			fmt.Fprintln(os.Stderr, "need --file")
			os.Exit(1)
		}
		out, err = c.upload(ctx, *file)

	default:
		usage()
	}
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			_ = os.Remove(tokenPath())
		}
		fail(err)
	}
	printJSON(out)
}
