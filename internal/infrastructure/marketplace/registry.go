package marketplace

import (
	"fmt"
	"sync"

	"github.com/marketsync/stocksync-go/internal/domain"
)

// Registry holds the marketplace clients known to this deployment. The
// concrete HTTP clients (eMag, Bol, Skroutz, Magento, Microinvest) live in
// their own integration packages and register themselves at wiring time;
// the engine and schedulers only see the domain.MarketplaceClient port.
type Registry struct {
	mu      sync.RWMutex
	clients map[domain.Platform]domain.MarketplaceClient
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[domain.Platform]domain.MarketplaceClient)}
}

func (r *Registry) Register(client domain.MarketplaceClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Platform()] = client
}

func (r *Registry) Get(platform domain.Platform) (domain.MarketplaceClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[platform]
	if !ok {
		return nil, fmt.Errorf("no marketplace client registered for %s", platform)
	}
	return client, nil
}

func (r *Registry) All() []domain.MarketplaceClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.MarketplaceClient, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
