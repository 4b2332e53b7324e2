package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/logging"

	"peerkey/native/internal/domain"
)

const (
	defaultICEServer      = "stun:stun.l.google.com:19302"
	defaultGatherTimeout  = 10 * time.Second
	defaultConnectTimeout = 30 * time.Second
)

// Config holds the application configuration.
type Config struct {
	Media          domain.MediaOption
	ICEServers     []domain.ICEServer
	GatherTimeout  time.Duration
	ConnectTimeout time.Duration

	VideoSource string
	AudioSource string
	VideoOut    string
	AudioOut    string

	Debug bool
}

// Load reads configuration from .env files (if present) and environment
// variables. Environment variables take precedence over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	fileEnv := map[string]string{}
	for _, f := range files {
		values, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range values {
			if _, ok := fileEnv[k]; !ok {
				fileEnv[k] = v
			}
		}
	}

	return parse(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return fileEnv[key]
	})
}

func parse(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Media:          domain.MediaAudioVideo,
		GatherTimeout:  defaultGatherTimeout,
		ConnectTimeout: defaultConnectTimeout,
		VideoSource:    getenv("PEERKEY_VIDEO_SOURCE"),
		AudioSource:    getenv("PEERKEY_AUDIO_SOURCE"),
		VideoOut:       getenv("PEERKEY_VIDEO_OUT"),
		AudioOut:       getenv("PEERKEY_AUDIO_OUT"),
	}

	if v := getenv("PEERKEY_MEDIA"); v != "" {
		m, err := domain.ParseMediaOption(v)
		if err != nil {
			return nil, fmt.Errorf("PEERKEY_MEDIA: %w", err)
		}
		cfg.Media = m
	}

	urls := getenv("PEERKEY_ICE_SERVERS")
	if urls == "" {
		urls = defaultICEServer
	}
	username := getenv("PEERKEY_ICE_USERNAME")
	credential := getenv("PEERKEY_ICE_CREDENTIAL")
	for _, u := range strings.Split(urls, ",") {
		u = strings.TrimSpace(u)
		if u == "" || u == "none" {
			continue
		}
		cfg.ICEServers = append(cfg.ICEServers, domain.ICEServer{
			URL:        u,
			Username:   username,
			Credential: credential,
		})
	}

	var err error
	if cfg.GatherTimeout, err = duration(getenv, "PEERKEY_GATHER_TIMEOUT", defaultGatherTimeout); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout, err = duration(getenv, "PEERKEY_CONNECT_TIMEOUT", defaultConnectTimeout); err != nil {
		return nil, err
	}

	if v := getenv("PEERKEY_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("PEERKEY_DEBUG: %w", err)
		}
		cfg.Debug = debug
	}

	return cfg, nil
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

// appScopes are the logger scopes owned by this module.
var appScopes = []string{"negotiator", "builder", "media", "webrtc", "app", "main"}

// LoggerFactory returns the pion logger factory for this configuration.
// App scopes log at info, or debug with PEERKEY_DEBUG. PION_LOG_* variables
// still apply to every other scope.
func (c *Config) LoggerFactory() logging.LoggerFactory {
	lf := logging.NewDefaultLoggerFactory()
	level := logging.LogLevelInfo
	if c.Debug {
		lf.DefaultLogLevel = logging.LogLevelDebug
		level = logging.LogLevelDebug
	}
	for _, scope := range appScopes {
		if _, set := lf.ScopeLevels[scope]; !set || c.Debug {
			lf.ScopeLevels[scope] = level
		}
	}
	return lf
}
