package model

import "time"

// IPVersion selects which address family a server connection should
// prefer, matching the config key ServerN.IpVersion (spec §6).
type IPVersion string

const (
	IPAuto IPVersion = "auto"
	IPv4   IPVersion = "ipv4"
	IPv6   IPVersion = "ipv6"
)

// ServerConfig is one News-Server configuration record (spec §3). Runtime
// pool state (open connections, block timer, counters) lives alongside it
// in nntppool.server, not here — this type is the persisted/configured
// half only.
type ServerConfig struct {
	ID            int
	Active        bool
	Name          string
	Host          string
	Port          int
	IPVersion     IPVersion
	Username      string
	Password      string
	TLS           bool
	Cipher        string
	MaxConnection int
	Level         int
	Group         string
	Retention     int
	Optional      bool
	JoinGroup     bool
}

// BlockState tracks a server's back-off window after a burst of transient
// failures (spec §4.1 "Failure semantics").
type BlockState struct {
	Blocked    bool
	Since      time.Time
	Until      time.Time
	Failures   int
	BackoffGen int
}
