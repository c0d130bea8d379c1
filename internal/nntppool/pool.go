// Package nntppool implements the News-Server Pool (spec §4.1, component
// C1): it owns the configured upstream servers, enforces per-server
// connection caps, and vends connections tiered by level/group.
package nntppool

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/nzbcore/nzbcore/internal/logx"
	"github.com/nzbcore/nzbcore/internal/model"
)

const (
	blockBurstThreshold = 3
	blockBaseDelay      = 10 * time.Second
	blockMaxDelay       = 30 * time.Minute
)

type server struct {
	mu     sync.Mutex
	cfg    model.ServerConfig
	idle   []*model.Connection
	active int
	block  model.BlockState
}

func (s *server) blocked(now time.Time) bool {
	return s.block.Blocked && now.Before(s.block.Until)
}

func (s *server) recordFailure(now time.Time) {
	s.block.Failures++
	if s.block.Failures < blockBurstThreshold {
		return
	}
	s.block.Blocked = true
	s.block.Since = now
	delay := blockBaseDelay << s.block.BackoffGen
	if delay > blockMaxDelay || delay <= 0 {
		delay = blockMaxDelay
	}
	s.block.Until = now.Add(delay)
	s.block.BackoffGen++
}

func (s *server) recordSuccess() {
	s.block = model.BlockState{}
}

// Pool is the C1 News-Server Pool. Acquire/Release are safe for
// concurrent use by the coordinator (under its queue guard, calling
// Acquire) and by downloader workers (calling Release, Dial, Fetch —
// never under the queue guard).
type Pool struct {
	mu      sync.RWMutex
	byID    map[int]*server
	ordered []*server // sorted by (level asc, original config order)
	logger  *logx.Logger
}

// New builds a pool from the configured servers, preserving config
// order as the tie-break within a level (spec §4.1 "first ... server
// with spare capacity").
func New(configs []model.ServerConfig, logger *logx.Logger) *Pool {
	p := &Pool{byID: make(map[int]*server), logger: logger}
	for _, cfg := range configs {
		s := &server{cfg: cfg}
		p.byID[cfg.ID] = s
		p.ordered = append(p.ordered, s)
	}
	sort.SliceStable(p.ordered, func(i, j int) bool {
		return p.ordered[i].cfg.Level < p.ordered[j].cfg.Level
	})
	return p
}

// Acquire is the non-blocking borrow spec §4.1 mandates: it never dials a
// socket, it only reserves a capacity slot on the first eligible server
// (lowest level, then configuration order) that is active, unblocked,
// within its level ceiling, not in the excluded group set, and has spare
// capacity. The caller (a downloader worker) dials lazily via Dial.
func (p *Pool) Acquire(level int, excludeGroups map[string]bool) (*model.Connection, bool) {
	now := time.Now()
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, s := range p.ordered {
		s.mu.Lock()
		if !s.cfg.Active || s.blocked(now) || s.cfg.Level > level {
			s.mu.Unlock()
			continue
		}
		if s.cfg.Group != "" && excludeGroups[s.cfg.Group] {
			s.mu.Unlock()
			continue
		}
		if s.active >= s.cfg.MaxConnection {
			s.mu.Unlock()
			continue
		}

		var conn *model.Connection
		if n := len(s.idle); n > 0 {
			conn = s.idle[n-1]
			s.idle = s.idle[:n-1]
		} else {
			conn = &model.Connection{ServerID: s.cfg.ID}
		}
		conn.InUse = true
		s.active++
		s.mu.Unlock()
		return conn, true
	}
	return nil, false
}

// Release returns a connection per spec §4.1's release() contract:
// transient errors close the connection and, after a burst of
// blockBurstThreshold of them, block the server; auth/fatal errors close
// it and start/extend the server's back-off window; ok keeps it pooled.
func (p *Pool) Release(conn *model.Connection, outcome model.ConnectionOutcome) {
	s := p.server(conn.ServerID)
	if s == nil {
		return
	}
	conn.InUse = false

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--

	switch outcome {
	case model.OutcomeOK:
		s.recordSuccess()
		s.idle = append(s.idle, conn)
	case model.OutcomeTransientError:
		conn.Close()
		s.recordFailure(time.Now())
	case model.OutcomeAuthOrFatal:
		conn.Close()
		s.recordFailure(time.Now())
		s.block.Blocked = true
		if s.block.Until.Before(time.Now()) {
			s.block.Until = time.Now().Add(blockBaseDelay)
		}
	}
}

// SetActive atomically toggles a server's participation; the scheduler
// sees the change on its next Acquire (spec §4.1 set_active).
func (p *Pool) SetActive(serverID int, active bool) {
	s := p.server(serverID)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.cfg.Active = active
	s.mu.Unlock()
}

// ConnectionCount returns per-server and aggregate active connection
// counts (spec §4.1 connection_count).
func (p *Pool) ConnectionCount() (total int, byServer map[int]int) {
	byServer = make(map[int]int)
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.ordered {
		s.mu.Lock()
		byServer[s.cfg.ID] = s.active
		total += s.active
		s.mu.Unlock()
	}
	return total, byServer
}

// TotalCapacity sums MaxConnection over active servers — used by the
// scheduler to compute downloads_limit (spec §4.3 step 2).
func (p *Pool) TotalCapacity() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0
	for _, s := range p.ordered {
		s.mu.Lock()
		if s.cfg.Active {
			total += s.cfg.MaxConnection
		}
		s.mu.Unlock()
	}
	return total
}

// MaxLevel returns the highest configured server level, so the
// coordinator knows when an escalating article has run out of tiers to
// try (spec §4.3 "no server exists at the next level").
func (p *Pool) MaxLevel() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	max := 0
	for _, s := range p.ordered {
		if s.cfg.Level > max {
			max = s.cfg.Level
		}
	}
	return max
}

// GroupOf returns the failover group of the server that owns serverID, so
// a not-found/mismatch result can be recorded against that group (spec
// §4.1 Policy, §4.3 escalation).
func (p *Pool) GroupOf(serverID int) string {
	return p.configFor(serverID).Group
}

func (p *Pool) server(id int) *server {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byID[id]
}

func (p *Pool) configFor(id int) model.ServerConfig {
	s := p.server(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// IsOptional reports whether the server that owns conn is configured
// optional (spec §4.1: "Optional servers never cause an article to be
// declared failed").
func (p *Pool) IsOptional(serverID int) bool {
	return p.configFor(serverID).Optional
}

// Dial connects conn's socket if it isn't already connected, and joins
// the first acceptable group. Called by a downloader worker, never under
// the queue guard.
func (p *Pool) Dial(ctx context.Context, conn *model.Connection, groups []string) error {
	if conn.Conn == nil {
		cfg := p.configFor(conn.ServerID)
		fresh, err := dial(ctx, cfg)
		if err != nil {
			return err
		}
		conn.Conn = fresh.Conn
		conn.Text = fresh.Text
	}
	return joinGroup(conn, groups)
}

// Fetch issues BODY <message-id> on an already-dialed connection.
func (p *Pool) Fetch(conn *model.Connection, msgID string) (io.Reader, error) {
	return fetchBody(conn, msgID)
}
