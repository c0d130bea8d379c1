// Package config loads the daemon's on-disk YAML configuration into the
// typed shapes every other component wants, grounded on the teacher's
// viper-based Load/validate idiom.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/nzbcore/nzbcore/internal/logx"
	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/postprocess"
	"github.com/nzbcore/nzbcore/internal/queue"
)

// Config is the full daemon configuration (spec §6): News-Server pool,
// download/output layout, queue scheduling tunables, post-processing
// behavior, categories and logging.
type Config struct {
	Servers    []ServerConfig          `mapstructure:"servers" yaml:"servers"`
	Download   DownloadConfig          `mapstructure:"download" yaml:"download"`
	Queue      QueueConfig             `mapstructure:"queue" yaml:"queue"`
	PostProc   PostProcessConfig       `mapstructure:"postprocess" yaml:"postprocess"`
	Categories []CategoryConfig        `mapstructure:"categories" yaml:"categories"`
	Log        LogConfig               `mapstructure:"log" yaml:"log"`
	Database   DatabaseConfig          `mapstructure:"database" yaml:"database"`
	WatchDir   string                  `mapstructure:"watch_dir" yaml:"watch_dir"`
	ListenAddr string                  `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// ServerConfig is one ServerN.* section. IDs are declared explicitly in
// YAML (an int, matching model.ServerConfig.ID) rather than assigned by
// position, so a server's identity survives reordering the list in a
// config edit.
type ServerConfig struct {
	ID            int    `mapstructure:"id" yaml:"id"`
	Active        bool   `mapstructure:"active" yaml:"active"`
	Name          string `mapstructure:"name" yaml:"name"`
	Host          string `mapstructure:"host" yaml:"host"`
	Port          int    `mapstructure:"port" yaml:"port"`
	IPVersion     string `mapstructure:"ip_version" yaml:"ip_version"`
	Username      string `mapstructure:"username" yaml:"username"`
	Password      string `mapstructure:"password" yaml:"password"`
	TLS           bool   `mapstructure:"tls" yaml:"tls"`
	Cipher        string `mapstructure:"cipher" yaml:"cipher"`
	MaxConnection int    `mapstructure:"max_connections" yaml:"max_connections"`
	Level         int    `mapstructure:"level" yaml:"level"`
	Group         string `mapstructure:"group" yaml:"group"`
	Retention     int    `mapstructure:"retention" yaml:"retention"`
	Optional      bool   `mapstructure:"optional" yaml:"optional"`
	JoinGroup     bool   `mapstructure:"join_group" yaml:"join_group"`
}

// ToModel converts a configured server into the runtime shape
// internal/nntppool consumes.
func (s ServerConfig) ToModel() model.ServerConfig {
	ip := model.IPVersion(s.IPVersion)
	if ip == "" {
		ip = model.IPAuto
	}
	return model.ServerConfig{
		ID:            s.ID,
		Active:        s.Active,
		Name:          s.Name,
		Host:          s.Host,
		Port:          s.Port,
		IPVersion:     ip,
		Username:      s.Username,
		Password:      s.Password,
		TLS:           s.TLS,
		Cipher:        s.Cipher,
		MaxConnection: s.MaxConnection,
		Level:         s.Level,
		Group:         s.Group,
		Retention:     s.Retention,
		Optional:      s.Optional,
		JoinGroup:     s.JoinGroup,
	}
}

type DownloadConfig struct {
	OutDir     string `mapstructure:"out_dir" yaml:"out_dir"`
	InterimDir string `mapstructure:"interim_dir" yaml:"interim_dir"`
}

// QueueConfig mirrors internal/queue.Config's tunables (spec §6's
// scheduling keys); zero fields fall back to queue.Config's own
// defaults via setDefaults.
type QueueConfig struct {
	MaxTotalConnections  int `mapstructure:"max_total_connections" yaml:"max_total_connections"`
	ArticleRetries       int `mapstructure:"article_retries" yaml:"article_retries"`
	ArticleLevelAttempts int `mapstructure:"article_level_attempts" yaml:"article_level_attempts"`
	ScheduleScanLimit    int `mapstructure:"schedule_scan_limit" yaml:"schedule_scan_limit"`
}

func (q QueueConfig) ToModel() queue.Config {
	return queue.Config{
		MaxTotalConnections:  q.MaxTotalConnections,
		ArticleRetries:       q.ArticleRetries,
		ArticleLevelAttempts: q.ArticleLevelAttempts,
		ScheduleScanLimit:    q.ScheduleScanLimit,
	}
}

// PostProcessConfig mirrors internal/postprocess.Config.
type PostProcessConfig struct {
	ParCheck              string   `mapstructure:"par_check" yaml:"par_check"`
	ParRepair             bool     `mapstructure:"par_repair" yaml:"par_repair"`
	ParRename             bool     `mapstructure:"par_rename" yaml:"par_rename"`
	ParTimeout            int      `mapstructure:"par_timeout" yaml:"par_timeout"`
	UnpackCleanupDisk     []string `mapstructure:"unpack_cleanup_disk" yaml:"unpack_cleanup_disk"`
	DefaultUnpackPassword string   `mapstructure:"unpack_password" yaml:"unpack_password"`
	ParallelJobs          int      `mapstructure:"parallel_jobs" yaml:"parallel_jobs"`
}

func (p PostProcessConfig) ToModel() postprocess.Config {
	cfg := postprocess.DefaultConfig()
	if p.ParCheck != "" {
		cfg.ParCheck = postprocess.ParCheckMode(p.ParCheck)
	}
	cfg.ParRepair = p.ParRepair
	cfg.ParRename = p.ParRename
	cfg.ParTimeout = p.ParTimeout
	cfg.UnpackCleanupDisk = p.UnpackCleanupDisk
	cfg.DefaultUnpackPassword = p.DefaultUnpackPassword
	if p.ParallelJobs > 0 {
		cfg.ParallelJobs = p.ParallelJobs
	}
	return cfg
}

// CategoryConfig is one CategoryN.* section (spec §6).
type CategoryConfig struct {
	Name        string            `mapstructure:"name" yaml:"name"`
	DestDir     string            `mapstructure:"dest_dir" yaml:"dest_dir"`
	Unpack      bool              `mapstructure:"unpack" yaml:"unpack"`
	PostScripts []string          `mapstructure:"post_scripts" yaml:"post_scripts"`
	Params      map[string]string `mapstructure:"params" yaml:"params"`
}

func (c CategoryConfig) ToModel() model.Category {
	return model.Category{
		Name:        c.Name,
		DestDir:     c.DestDir,
		Unpack:      c.Unpack,
		PostScripts: c.PostScripts,
		Params:      model.PostParams(c.Params),
	}
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
	MaxSizeMB     int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups    int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays    int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	RingSize      int    `mapstructure:"ring_size" yaml:"ring_size"`
}

func (l LogConfig) ToModel() logx.Config {
	return logx.Config{
		FilePath:      l.Path,
		MaxSizeMB:     l.MaxSizeMB,
		MaxBackups:    l.MaxBackups,
		MaxAgeDays:    l.MaxAgeDays,
		Level:         logx.ParseLevel(l.Level),
		IncludeStdout: l.IncludeStdout,
		RingSize:      l.RingSize,
	}
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Load reads the daemon's YAML config from path (default "config.yaml"),
// applies NZBCORE_-prefixed environment overrides, and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if path == "config.yaml" {
			if _, errEx := os.Stat("config.yaml.example"); errEx == nil {
				return nil, fmt.Errorf("configuration file 'config.yaml' not found\n\n" +
					"To fix this, run:\n" +
					"  cp config.yaml.example config.yaml\n" +
					"Then edit it with your Usenet credentials.")
			}
		}
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	v := viper.New()

	v.SetDefault("download.out_dir", "./downloads")
	v.SetDefault("download.interim_dir", "")
	v.SetDefault("queue.article_retries", 3)
	v.SetDefault("queue.article_level_attempts", 1)
	v.SetDefault("postprocess.par_check", "auto")
	v.SetDefault("postprocess.par_repair", true)
	v.SetDefault("postprocess.par_rename", true)
	v.SetDefault("postprocess.parallel_jobs", 1)
	v.SetDefault("log.path", "nzbcore.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.ring_size", 1000)
	v.SetDefault("database.path", "./nzbcore.db")
	v.SetDefault("watch_dir", "")

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	v.SetEnvPrefix("NZBCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Servers) == 0 {
		return errors.New("at least one server must be configured")
	}

	seen := make(map[int]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.ID == 0 {
			return fmt.Errorf("server[%d] requires a non-zero id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("server[%d]: duplicate id %d", i, s.ID)
		}
		seen[s.ID] = true

		if s.Host == "" {
			return fmt.Errorf("server %d: host is required", s.ID)
		}
		if s.Port == 0 {
			return fmt.Errorf("server %d: port is required", s.ID)
		}
		if s.MaxConnection <= 0 {
			c.Servers[i].MaxConnection = 10
		}
	}

	if c.Download.OutDir == "" {
		c.Download.OutDir = "./downloads"
	}

	return nil
}

// ServerModels converts every configured server into the runtime shape.
func (c *Config) ServerModels() []model.ServerConfig {
	out := make([]model.ServerConfig, len(c.Servers))
	for i, s := range c.Servers {
		out[i] = s.ToModel()
	}
	return out
}

// CategoryModels builds the name→Category lookup the editor's
// set-category action and NZB ingestion consult.
func (c *Config) CategoryModels() map[string]model.Category {
	out := make(map[string]model.Category, len(c.Categories))
	for _, cat := range c.Categories {
		out[cat.Name] = cat.ToModel()
	}
	return out
}
