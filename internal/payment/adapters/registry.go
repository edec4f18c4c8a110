package adapters

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/payment/domain"
)

type registryKey struct {
	merchantID snowflake.ID
	channel    domain.Channel
}

// Registry maps a channel (optionally scoped to one merchant) to a shared
// stateless adapter instance. Lookup falls back to the unscoped entry when
// no merchant-specific adapter is registered.
type Registry struct {
	mu       sync.RWMutex
	adapters map[registryKey]domain.Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[registryKey]domain.Adapter)}
}

// Register installs the default adapter for a channel.
func (r *Registry) Register(channel domain.Channel, adapter domain.Adapter) {
	r.RegisterForMerchant(0, channel, adapter)
}

// RegisterForMerchant installs a merchant-scoped adapter, used when one
// tenant carries its own channel credentials.
func (r *Registry) RegisterForMerchant(merchantID snowflake.ID, channel domain.Channel, adapter domain.Adapter) {
	if adapter == nil {
		return
	}
	r.mu.Lock()
	r.adapters[registryKey{merchantID, channel}] = adapter
	r.mu.Unlock()
}

// Resolve returns the adapter for (merchant, channel), falling back to the
// default entry. A miss is ErrUnsupportedChannel, never a guess across
// channels.
func (r *Registry) Resolve(merchantID snowflake.ID, channel domain.Channel) (domain.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if adapter, ok := r.adapters[registryKey{merchantID, channel}]; ok {
		return adapter, nil
	}
	if adapter, ok := r.adapters[registryKey{0, channel}]; ok {
		return adapter, nil
	}
	return nil, domain.ErrUnsupportedChannel
}

// Channels lists the channel tags with at least one registered adapter.
func (r *Registry) Channels() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[domain.Channel]struct{})
	var channels []domain.Channel
	for key := range r.adapters {
		if _, ok := seen[key.channel]; ok {
			continue
		}
		seen[key.channel] = struct{}{}
		channels = append(channels, key.channel)
	}
	return channels
}

// Supports reports whether any adapter is registered for the channel.
func (r *Registry) Supports(channel domain.Channel) bool {
	_, err := r.Resolve(0, channel)
	return err == nil
}
