package backend

import (
	"fmt"
	"log/slog"

	"caretaker/internal/config"
	"caretaker/internal/remote"
)

// New builds the backend named by the configuration. A nil Backend
// with a nil error means mirroring is disabled.
func New(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	t := Type(cfg.DataBackend)
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	switch t {
	case RESTBackend:
		logger.Info("Initialized REST backend", "base_url", cfg.RemoteBaseURL)
		return remote.New(cfg.RemoteBaseURL, cfg.RemoteAPIKey, cfg.RemoteTimeout), nil
	case MemoryBackend:
		logger.Info("Initialized memory backend")
		return NewMemory(), nil
	case NoBackend:
		logger.Info("Backend mirroring disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", t)
	}
}
