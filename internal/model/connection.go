package model

import (
	"net"
	"net/textproto"
)

// Connection is one established socket to one server (spec §3), owned
// exclusively by the pool slot it occupies and loaned to at most one
// Article at a time.
type Connection struct {
	ServerID   int
	Conn       net.Conn
	Text       *textproto.Conn
	LastGroup  string // last-used group cache (joined newsgroup)
	InUse      bool
}

// Close tears down the underlying socket. Errors are swallowed the way
// the teacher's nntpProvider.Close does (a QUIT best-effort), since a
// close failure has no recovery action.
func (c *Connection) Close() error {
	if c.Text != nil {
		_ = c.Text.Close()
		return nil
	}
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}
