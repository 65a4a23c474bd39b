package mdt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// BackendKind names a transport implementation
type BackendKind string

const (
	BackendSDK    BackendKind = "sdk"
	BackendSerial BackendKind = "serial"
)

// Transport is an open command channel to one controller.
type Transport interface {
	Kind() BackendKind
	Port() string
	// Send executes one command. A failed or timed-out call leaves the
	// transport usable; callers decide whether to retry.
	Send(ctx context.Context, cmd Command) (Response, error)
	Close() error
}

// Backend opens transports of one kind.
type Backend interface {
	Kind() BackendKind
	Open(ctx context.Context, port string) (Transport, error)
}

// BackendMode selects how a backend is chosen at connect time
type BackendMode string

const (
	BackendAuto       BackendMode = "auto"
	BackendModeSDK    BackendMode = "sdk"
	BackendModeSerial BackendMode = "serial"
)

// DefaultSDKPath is where the DLL helper places the vendor library.
var DefaultSDKPath = filepath.Join(".mdt_dlls", "MDT_COMMAND_LIB.dll")

// BackendConfig configures backend selection and both backends.
type BackendConfig struct {
	Mode BackendMode
	// SDKPath is the vendor command library file.
	SDKPath string
	// SDKFallback allows falling back to the serial backend when the
	// library file is present but fails to load.
	SDKFallback bool
	// CommandTimeout bounds every command round-trip.
	CommandTimeout time.Duration
	// EOL terminates serial commands.
	EOL    string
	Serial []Option
	Open   OpenFunc
	// LoadSDK loads the command library; nil selects the platform loader.
	LoadSDK func(path string) (CommandLibrary, error)
}

// DefaultBackendConfig returns auto selection with a 500ms command timeout.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Mode:           BackendAuto,
		SDKPath:        DefaultSDKPath,
		CommandTimeout: 500 * time.Millisecond,
		EOL:            "\r",
	}
}

func (c BackendConfig) withDefaults() BackendConfig {
	def := DefaultBackendConfig()
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.SDKPath == "" {
		c.SDKPath = def.SDKPath
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = def.CommandTimeout
	}
	if c.EOL == "" {
		c.EOL = def.EOL
	}
	if c.Open == nil {
		c.Open = Open
	}
	if c.LoadSDK == nil {
		c.LoadSDK = LoadSDK
	}
	return c
}

// Selection reports the chosen backend and whether it is a fallback from
// a library that failed to load.
type Selection struct {
	Backend  Backend
	FellBack bool
	LoadErr  error
}

// SelectBackend picks the backend for one connection attempt. In auto mode
// the SDK is used when its library file exists and loads; an absent file
// selects serial. A present file that fails to load returns ErrSDKLoad
// unless SDKFallback is set.
func SelectBackend(cfg BackendConfig, log zerolog.Logger) (Selection, error) {
	cfg = cfg.withDefaults()
	serial := &serialBackend{cfg: cfg}

	switch cfg.Mode {
	case BackendModeSerial:
		return Selection{Backend: serial}, nil
	case BackendModeSDK, BackendAuto:
	default:
		return Selection{}, fmt.Errorf("%w: backend mode %q", ErrInvalidConfig, cfg.Mode)
	}

	if _, err := os.Stat(cfg.SDKPath); err != nil {
		if cfg.Mode == BackendModeSDK {
			return Selection{}, fmt.Errorf("%w: %s", ErrSDKNotPresent, cfg.SDKPath)
		}
		log.Debug().Str("path", cfg.SDKPath).Msg("command library not present, using serial backend")
		return Selection{Backend: serial}, nil
	}

	lib, err := cfg.LoadSDK(cfg.SDKPath)
	if err == nil {
		return Selection{Backend: &sdkBackend{lib: lib, cfg: cfg}}, nil
	}
	if !errors.Is(err, ErrSDKNotPresent) && !errors.Is(err, ErrSDKLoad) {
		err = fmt.Errorf("%w: %v", ErrSDKLoad, err)
	}
	if errors.Is(err, ErrSDKNotPresent) && cfg.Mode == BackendAuto {
		log.Debug().Err(err).Msg("command library unsupported here, using serial backend")
		return Selection{Backend: serial}, nil
	}
	if cfg.Mode == BackendAuto && cfg.SDKFallback {
		log.Warn().Err(err).Str("path", cfg.SDKPath).Msg("command library failed to load, falling back to serial backend")
		return Selection{Backend: serial, FellBack: true, LoadErr: err}, nil
	}
	return Selection{}, err
}
