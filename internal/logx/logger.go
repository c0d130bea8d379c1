// Package logx is the daemon's leveled logger: a rotating file sink plus
// an in-memory ring buffer of recent lines, the shape spec §5 names
// ("Log message ring buffer is protected separately") and spec §6's
// `-G N` / `-W` CLI surface would read from.
package logx

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Line is one ring-buffer entry.
type Line struct {
	Time  time.Time
	Level Level
	Text  string
}

// Logger writes leveled, timestamped lines to a rotating file (and
// optionally stdout) while retaining the last RingSize lines in memory.
type Logger struct {
	out           *lumberjack.Logger
	level         Level
	includeStdout bool

	mu   sync.Mutex
	ring []Line
	head int
	size int
}

const defaultRingSize = 1000

// Config mirrors the subset of the file-logging keys spec §6's config
// surface names (path, rotation size/age/backups).
type Config struct {
	FilePath      string
	MaxSizeMB     int
	MaxBackups    int
	MaxAgeDays    int
	Level         Level
	IncludeStdout bool
	RingSize      int
}

// New opens (creating if needed) the rotating log file described by cfg.
func New(cfg Config) (*Logger, error) {
	if cfg.FilePath != "" {
		if _, err := os.Stat(cfg.FilePath); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	ringSize := cfg.RingSize
	if ringSize <= 0 {
		ringSize = defaultRingSize
	}
	return &Logger{
		out: &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxOr(cfg.MaxSizeMB, 50),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		},
		level:         cfg.Level,
		includeStdout: cfg.IncludeStdout,
		ring:          make([]Line, ringSize),
	}, nil
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *Logger) log(lvl Level, prefix, format string, v ...any) {
	if lvl < l.level {
		return
	}
	now := time.Now()
	msg := fmt.Sprintf(format, v...)
	line := fmt.Sprintf("%s [%s] %s", now.Format("2006-01-02 15:04:05"), prefix, msg)

	if l.out != nil {
		fmt.Fprintln(l.out, line)
	}
	if l.includeStdout && lvl >= LevelInfo {
		fmt.Println(line)
	}

	l.mu.Lock()
	l.ring[l.head] = Line{Time: now, Level: lvl, Text: msg}
	l.head = (l.head + 1) % len(l.ring)
	if l.size < len(l.ring) {
		l.size++
	}
	l.mu.Unlock()
}

// Recent returns up to n of the most recently logged lines, oldest first
// — the data behind spec §6's `-G N` ("last N log lines") CLI surface.
func (l *Logger) Recent(n int) []Line {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]Line, n)
	start := (l.head - n + len(l.ring)) % len(l.ring)
	for i := 0; i < n; i++ {
		out[i] = l.ring[(start+i)%len(l.ring)]
	}
	return out
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, "DEBUG", f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, "INFO", f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, "WARN", f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, "ERROR", f, v...) }
func (l *Logger) Fatal(f string, v ...any) {
	l.log(LevelFatal, "FATAL", f, v...)
	os.Exit(1)
}

// Write implements io.Writer so third-party packages that want a
// destination (migrate's logger, an http server's ErrorLog) can target
// this logger directly, the same integration the teacher's logger used
// for echo.
func (l *Logger) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}

func (l *Logger) Close() error {
	if l.out != nil {
		return l.out.Close()
	}
	return nil
}
