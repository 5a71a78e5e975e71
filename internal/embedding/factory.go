package embedding

import (
	"time"

	"github.com/memsearch/memsearch/internal/embedcache"
)

// New builds a Provider from cfg, wrapping it with the shared embedcache
// tier unless cacheSize is zero. This is the composition root MemoryService
// uses; tests construct providers directly instead.
func New(cfg Config, cacheSize int, cacheTTL time.Duration) (Provider, error) {
	var inner Provider
	switch cfg.Provider {
	case "ollama", "http":
		inner = NewHTTPProvider(cfg)
	case "static", "":
		inner = NewStaticProvider(cfg.Dimensions)
	default:
		inner = NewStaticProvider(cfg.Dimensions)
	}

	if cacheSize <= 0 {
		return inner, nil
	}
	cache, err := embedcache.New(cacheSize, embedcache.WithTTL(cacheTTL))
	if err != nil {
		return nil, err
	}
	return NewCachedProvider(inner, cache, cfg.Provider, cfg.Model), nil
}
