// Command feedsmoke is a CI-friendly end-to-end check of a running tourdesk
// server's activity feed.
//
// It validates:
//   - login over REST
//   - feed handshake with the bearer subprotocol
//   - feed.hello on connect
//   - catalog.changed fan-out to two subscribers on create and delete
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/pflag"

	"tourdesk/cmd/internal/backoffice"
	"tourdesk/cmd/internal/catalog"
	"tourdesk/cmd/internal/feed"
)

const maxReadBytes = 1 << 20

type options struct {
	server   string
	origin   string
	email    string
	password string
	timeout  time.Duration
	verbose  bool
}

func main() {
	var o options
	fs := pflag.NewFlagSet("feedsmoke", pflag.ExitOnError)
	fs.StringVar(&o.server, "server", "http://127.0.0.1:8080", "tourdesk base URL")
	fs.StringVar(&o.origin, "origin", "", "Origin header to send (browser-like handshake)")
	fs.StringVar(&o.email, "email", os.Getenv("TOURDESK_SMOKE_EMAIL"), "account email (needs categories.write)")
	fs.StringVar(&o.password, "password", os.Getenv("TOURDESK_SMOKE_PASSWORD"), "account password")
	fs.DurationVar(&o.timeout, "timeout", 7*time.Second, "per-step timeout")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")
	_ = fs.Parse(os.Args[1:])

	if err := run(context.Background(), o, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
}

type smokeClient struct {
	name string
	id   string
	conn *websocket.Conn
}

func run(ctx context.Context, o options, out io.Writer) error {
	if err := validateOrigin(o.origin); err != nil {
		return fmt.Errorf("invalid --origin: %w", err)
	}
	wsURL, err := feedURL(o.server)
	if err != nil {
		return fmt.Errorf("invalid --server: %w", err)
	}

	api, err := backoffice.NewClient(o.server, backoffice.NewSession(&backoffice.MemoryTokenStore{}), backoffice.WithUserAgent("feedsmoke"))
	if err != nil {
		return err
	}
	loginCtx, cancel := context.WithTimeout(ctx, o.timeout)
	_, err = api.Login(loginCtx, o.email, o.password)
	cancel()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	token := api.Session().Token()

	a, err := connect(ctx, "A", wsURL, o.origin, token, o.timeout)
	if err != nil {
		return err
	}
	defer closeWS(a.conn)
	b, err := connect(ctx, "B", wsURL, o.origin, token, o.timeout)
	if err != nil {
		return err
	}
	defer closeWS(b.conn)

	if o.verbose {
		fmt.Fprintf(out, "connected: A=%s B=%s\n", a.id, b.id)
	}

	var created struct {
		Category catalog.Category `json:"category"`
	}
	name := fmt.Sprintf("smoke %d", time.Now().UnixNano())
	stepCtx, cancel := context.WithTimeout(ctx, o.timeout)
	err = api.Do(stepCtx, http.MethodPost, "/api/v1/categories", catalog.CategoryInput{Name: name}, &created)
	cancel()
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	id := created.Category.ID

	for _, c := range []*smokeClient{a, b} {
		if err := c.expectChange(ctx, catalog.EntityCategories, id, feed.ActionCreated, o.timeout); err != nil {
			return err
		}
	}

	stepCtx, cancel = context.WithTimeout(ctx, o.timeout)
	err = api.Do(stepCtx, http.MethodDelete, "/api/v1/categories/"+url.PathEscape(id), nil, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	for _, c := range []*smokeClient{a, b} {
		if err := c.expectChange(ctx, catalog.EntityCategories, id, feed.ActionDeleted, o.timeout); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "OK: A=%s B=%s category=%s\n", a.id, b.id, id)
	return nil
}

func feedURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	u.Path += "/api/v1/feed"
	return u.String(), nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func connect(parent context.Context, name, wsURL, origin, token string, stepTimeout time.Duration) (*smokeClient, error) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{feed.Subprotocol, "bearer." + token},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}
	if got := conn.Subprotocol(); got != feed.Subprotocol {
		closeWS(conn)
		return nil, fmt.Errorf("subprotocol mismatch (%s): got=%q want=%q", name, got, feed.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{name: name, conn: conn}
	hello, err := c.read(parent, stepTimeout)
	if err != nil {
		closeWS(conn)
		return nil, err
	}
	if hello.Type != feed.TypeHello || hello.ID == "" {
		closeWS(conn)
		return nil, fmt.Errorf("expected %s with client id (%s), got %+v", feed.TypeHello, name, hello)
	}
	c.id = hello.ID
	return c, nil
}

func (c *smokeClient) read(parent context.Context, stepTimeout time.Duration) (feed.Event, error) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var ev feed.Event
	if err := wsjson.Read(ctx, c.conn, &ev); err != nil {
		return feed.Event{}, fmt.Errorf("read (%s): %w", c.name, err)
	}
	return ev, nil
}

// expectChange reads until the matching catalog.changed arrives. Changes made
// by other writers in the meantime are skipped.
func (c *smokeClient) expectChange(parent context.Context, entity, id, action string, stepTimeout time.Duration) error {
	deadline := time.Now().Add(stepTimeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return fmt.Errorf("timeout waiting for %s %s/%s (%s)", action, entity, id, c.name)
		}
		ev, err := c.read(parent, left)
		if err != nil {
			return err
		}
		if ev.Type == feed.TypeCatalogChanged && ev.Entity == entity && ev.ID == id && ev.Action == action {
			return nil
		}
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}
