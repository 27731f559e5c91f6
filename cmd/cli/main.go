// Command tube is a CLI client for the tubeaccount HTTP API.
package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "tubeaccount")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tubeaccount")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func readToken() (tokenFile, error) {
	var tf tokenFile
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tf, err
	}
	err = json.Unmarshal(b, &tf)
	return tf, err
}

// loadToken returns a still valid access token.
func loadToken() (string, error) {
	tf, err := readToken()
	if err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login or refresh required)")
	}
	return tf.AccessToken, nil
}

// tokenExpiry reads exp from an access token without verifying its signature.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Now().Add(15 * time.Minute)
	}
	return claims.ExpiresAt.Time
}

func storeTokens(access, refresh string) error {
	return saveToken(tokenFile{AccessToken: access, RefreshToken: refresh, ExpiresAt: tokenExpiry(access)})
}

// ---- http client ----

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error: status=%d msg=%s", e.Status, e.Message)
}

type reply struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

type client struct {
	base   string
	hc     *http.Client
	bearer string
}

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev only
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}

func newClient(addr, caPath string, insecure bool, bearer string) (*client, error) {
	tc, err := loadTLS(caPath, insecure)
	if err != nil {
		return nil, err
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if tc != nil {
		tr.TLSClientConfig = tc
	}
	return &client{
		base:   strings.TrimRight(addr, "/") + "/api/v1/users",
		hc:     &http.Client{Transport: tr, Timeout: 30 * time.Second},
		bearer: bearer,
	}, nil
}

// do sends a request and decodes the response envelope into out when non-nil.
func (c *client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return "", err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var r reply
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !r.Success {
		return "", &apiError{Status: resp.StatusCode, Message: r.Message}
	}
	if out != nil && len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, out); err != nil {
			return "", err
		}
	}
	return r.Message, nil
}

func (c *client) doJSON(ctx context.Context, method, path string, in, out any) (string, error) {
	if in == nil {
		return c.do(ctx, method, path, "", nil, out)
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(b), out)
}

// doForm sends fields and files as multipart/form-data.
func (c *client) doForm(ctx context.Context, method, path string, fields, files map[string]string, out any) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	for field, p := range files {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		fw, err := mw.CreateFormFile(field, filepath.Base(p))
		if err != nil {
			return "", err
		}
		if _, err := fw.Write(data); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return c.do(ctx, method, path, mw.FormDataContentType(), &buf, out)
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// promptPassword reads a password from the terminal when the flag was omitted.
func promptPassword(label, given string) (string, error) {
	if given != "" {
		return given, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, label+": ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `tube CLI
Usage:
  tube -addr URL [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  register  -u <username> -e <email> -n <full name> [-p <password>] -avatar <file> [-cover <file>]
  login     (-u <username> | -e <email>) [-p <password>]     (saves tokens)
  refresh                                                 (rotates saved tokens)
  logout
  me
  passwd    [-old <password>] [-new <password>]            (prompts when omitted)
  update    -n <full name> -e <email>
  avatar    -file <image>
  cover     -file <image>
  channel   <username>
  history
  users
`)
}

var errUsage = errors.New("usage")

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the HTTP API.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage()
			os.Exit(2)
		}
		fail(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	// global flags
	gfs := flag.NewFlagSet("tube", flag.ContinueOnError)
	addr := gfs.String("addr", "http://localhost:8000", "server base URL")
	caPath := gfs.String("cacert", "", "CA cert (PEM)")
	insecure := gfs.Bool("insecure", false, "skip cert verify (dev)")
	gfs.Usage = func() {}
	if err := gfs.Parse(args); err != nil || gfs.NArg() < 1 {
		return errUsage
	}
	cmd, rest := gfs.Arg(0), gfs.Args()[1:]

	anon := func() (*client, error) { return newClient(*addr, *caPath, *insecure, "") }
	authed := func() (*client, error) {
		tok, err := loadToken()
		if err != nil {
			return nil, err
		}
		return newClient(*addr, *caPath, *insecure, tok)
	}

	switch cmd {
	case "version":
		fmt.Fprintf(out, "tube %s (%s)\n", version, buildDate)
		return nil

	case "register":
		fs := flag.NewFlagSet("register", flag.ContinueOnError)
		u := fs.String("u", "", "username")
		e := fs.String("e", "", "email")
		n := fs.String("n", "", "full name")
		p := fs.String("p", "", "password")
		avatar := fs.String("avatar", "", "avatar image")
		cover := fs.String("cover", "", "cover image")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		pw, err := promptPassword("password", *p)
		if err != nil {
			return err
		}
		*p = pw
		if *u == "" || *e == "" || *n == "" || *p == "" || *avatar == "" {
			return errors.New("need -u -e -n -p and -avatar")
		}
		cli, err := anon()
		if err != nil {
			return err
		}
		var user map[string]any
		fields := map[string]string{"username": *u, "email": *e, "fullName": *n, "password": *p}
		files := map[string]string{"avatar": *avatar, "coverImage": *cover}
		if _, err := cli.doForm(ctx, http.MethodPost, "/register", fields, files, &user); err != nil {
			return err
		}
		printJSON(out, user)
		return nil

	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		u := fs.String("u", "", "username")
		e := fs.String("e", "", "email")
		p := fs.String("p", "", "password")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		pw, err := promptPassword("password", *p)
		if err != nil {
			return err
		}
		*p = pw
		if (*u == "" && *e == "") || *p == "" {
			return errors.New("need -u or -e, and -p")
		}
		cli, err := anon()
		if err != nil {
			return err
		}
		var resp struct {
			User         map[string]any `json:"user"`
			AccessToken  string         `json:"accessToken"`
			RefreshToken string         `json:"refreshToken"`
		}
		body := map[string]string{"username": *u, "email": *e, "password": *p}
		if _, err := cli.doJSON(ctx, http.MethodPost, "/login", body, &resp); err != nil {
			return err
		}
		if err := storeTokens(resp.AccessToken, resp.RefreshToken); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil

	case "refresh":
		tf, err := readToken()
		if err != nil || tf.RefreshToken == "" {
			return errors.New("no refresh token (login required)")
		}
		cli, err := anon()
		if err != nil {
			return err
		}
		var resp struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		}
		body := map[string]string{"refreshToken": tf.RefreshToken}
		if _, err := cli.doJSON(ctx, http.MethodPost, "/refresh-token", body, &resp); err != nil {
			return err
		}
		if err := storeTokens(resp.AccessToken, resp.RefreshToken); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil

	case "logout":
		cli, err := authed()
		if err != nil {
			return err
		}
		if _, err := cli.doJSON(ctx, http.MethodPost, "/logout", nil, nil); err != nil {
			return err
		}
		_ = os.Remove(tokenPath())
		fmt.Fprintln(out, "ok")
		return nil

	case "me":
		return getAndPrint(ctx, authed, "/current-user", out)

	case "passwd":
		fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
		oldPw := fs.String("old", "", "current password")
		newPw := fs.String("new", "", "new password")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		var err error
		if *oldPw, err = promptPassword("current password", *oldPw); err != nil {
			return err
		}
		if *newPw, err = promptPassword("new password", *newPw); err != nil {
			return err
		}
		cli, err := authed()
		if err != nil {
			return err
		}
		msg, err := cli.doJSON(ctx, http.MethodPost, "/change-password",
			map[string]string{"oldPassword": *oldPw, "newPassword": *newPw}, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, msg)
		return nil

	case "update":
		fs := flag.NewFlagSet("update", flag.ContinueOnError)
		n := fs.String("n", "", "full name")
		e := fs.String("e", "", "email")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		cli, err := authed()
		if err != nil {
			return err
		}
		var user map[string]any
		if _, err := cli.doJSON(ctx, http.MethodPatch, "/update-account",
			map[string]string{"fullName": *n, "email": *e}, &user); err != nil {
			return err
		}
		printJSON(out, user)
		return nil

	case "avatar", "cover":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		file := fs.String("file", "", "image file")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		if *file == "" {
			return errors.New("need -file")
		}
		path, field := "/avatar", "avatar"
		if cmd == "cover" {
			path, field = "/coverImage", "coverImage"
		}
		cli, err := authed()
		if err != nil {
			return err
		}
		var user map[string]any
		if _, err := cli.doForm(ctx, http.MethodPatch, path, nil, map[string]string{field: *file}, &user); err != nil {
			return err
		}
		printJSON(out, user)
		return nil

	case "channel":
		if len(rest) < 1 || rest[0] == "" {
			return errors.New("need <username>")
		}
		return getAndPrint(ctx, authed, "/c/"+rest[0], out)

	case "history":
		return getAndPrint(ctx, authed, "/history", out)

	case "users":
		tok, _ := loadToken()
		cli, err := newClient(*addr, *caPath, *insecure, tok)
		if err != nil {
			return err
		}
		var users []map[string]any
		if _, err := cli.doJSON(ctx, http.MethodGet, "/getuser", nil, &users); err != nil {
			return err
		}
		printJSON(out, users)
		return nil
	}
	return errUsage
}

func getAndPrint(ctx context.Context, mk func() (*client, error), path string, out io.Writer) error {
	cli, err := mk()
	if err != nil {
		return err
	}
	var data any
	if _, err := cli.doJSON(ctx, http.MethodGet, path, nil, &data); err != nil {
		return err
	}
	printJSON(out, data)
	return nil
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: status=%d msg=%s\n", ae.Status, ae.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
