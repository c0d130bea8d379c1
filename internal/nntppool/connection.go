package nntppool

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/nzbcore/nzbcore/internal/model"
)

// dial establishes and authenticates a fresh socket for cfg, kept close
// to the teacher's nntpProvider.ensureConnected/authenticate (the NNTP
// handshake itself doesn't change under this rewrite — "keep HOW, replace
// WHAT"). A small bounded retry absorbs transient DNS/connect hiccups
// without blocking the scheduler, since dialing only ever happens from a
// downloader worker goroutine, never under the queue guard.
func dial(ctx context.Context, cfg model.ServerConfig) (*model.Connection, error) {
	var conn *model.Connection

	err := retry.Do(
		func() error {
			c, dialErr := dialOnce(ctx, cfg)
			if dialErr != nil {
				return dialErr
			}
			conn = c
			return nil
		},
		retry.Attempts(2),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func dialOnce(ctx context.Context, cfg model.ServerConfig) (*model.Connection, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	d := net.Dialer{Timeout: 10 * time.Second}
	var raw net.Conn
	var err error

	if cfg.TLS {
		tlsCfg := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
		raw, err = tls.DialWithDialer(&d, "tcp", addr, tlsCfg)
	} else {
		raw, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Host, err)
	}

	text := textproto.NewConn(raw)

	if _, _, err := text.ReadCodeLine(200); err != nil {
		if _, _, err2 := text.ReadCodeLine(201); err2 != nil {
			text.Close()
			return nil, fmt.Errorf("greeting: %w", err)
		}
	}

	conn := &model.Connection{ServerID: cfg.ID, Conn: raw, Text: text}
	if err := authenticate(conn, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func authenticate(conn *model.Connection, cfg model.ServerConfig) error {
	if cfg.Username == "" {
		return nil
	}
	if _, err := conn.Text.Cmd("AUTHINFO USER %s", cfg.Username); err != nil {
		return err
	}
	if _, _, err := conn.Text.ReadCodeLine(381); err != nil {
		return fmt.Errorf("authinfo user: %w", err)
	}
	if _, err := conn.Text.Cmd("AUTHINFO PASS %s", cfg.Password); err != nil {
		return err
	}
	if _, _, err := conn.Text.ReadCodeLine(281); err != nil {
		return fmt.Errorf("authinfo pass: %w", err)
	}
	return nil
}

// joinGroup issues GROUP for the first entry in groups the server
// acknowledges, skipping the round-trip entirely if the connection
// already has that group selected (spec §4.2 operation 1).
func joinGroup(conn *model.Connection, groups []string) error {
	if len(groups) == 0 {
		return nil
	}
	for _, g := range groups {
		if conn.LastGroup == g {
			return nil
		}
		if _, err := conn.Text.Cmd("GROUP %s", g); err != nil {
			continue
		}
		if _, _, err := conn.Text.ReadCodeLine(211); err == nil {
			conn.LastGroup = g
			return nil
		}
	}
	return fmt.Errorf("no group in %v accepted", groups)
}

// fetchBody issues BODY <message-id> and returns the dot-stuffed body
// reader, the teacher's nntpProvider.Fetch kept close to verbatim.
func fetchBody(conn *model.Connection, msgID string) (io.Reader, error) {
	id := msgID
	if !strings.HasPrefix(id, "<") {
		id = "<" + id + ">"
	}
	if _, err := conn.Text.Cmd("BODY %s", id); err != nil {
		return nil, err
	}
	if _, _, err := conn.Text.ReadCodeLine(222); err != nil {
		if isArticleNotFoundCode(err) {
			return nil, model.ErrArticleNotFound
		}
		return nil, err
	}
	return conn.Text.DotReader(), nil
}

func isArticleNotFoundCode(err error) bool {
	if pe, ok := err.(*textproto.Error); ok {
		return pe.Code == 430 || pe.Code == 423 || pe.Code == 420
	}
	return strings.Contains(err.Error(), "430")
}
