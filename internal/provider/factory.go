package provider

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nimbussearch/genengine/internal/config"
)

// New builds the Gateway selected by cfg.Kind ("stub" or "grpc"), wiring
// the optional Redis response cache when cfg.CacheRedisAddr is set.
func New(cfg config.ProviderConfig) (Gateway, func() error, error) {
	switch cfg.Kind {
	case "", "stub":
		return NewStubGateway(), func() error { return nil }, nil
	case "grpc":
		var opts []Option
		var redisClient *redis.Client
		if cfg.CacheRedisAddr != "" {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.CacheRedisAddr})
			opts = append(opts, WithResponseCache(redisClient, cfg.CacheTTL))
		}
		gw, err := NewGRPCGateway(cfg.GRPCAddress, opts...)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error {
			err := gw.Close()
			if redisClient != nil {
				if cerr := redisClient.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}
			return err
		}
		return gw, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("provider: unknown gateway kind %q", cfg.Kind)
	}
}
