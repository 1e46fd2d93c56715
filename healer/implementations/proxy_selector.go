package implementations

import (
	"proxy-healer/healer/interfaces"
	"proxy-healer/models"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type selectorEntry struct {
	proxy  models.Proxy
	health func() models.HealthStatus
}

// WeightedProxySelector implements the ProxySelector interface
type WeightedProxySelector struct {
	entries        map[string]*selectorEntry
	logger         *zap.Logger
	mu             sync.Mutex
	currentWeights map[string]float64
}

// Ensure WeightedProxySelector implements ProxySelector interface
var _ interfaces.ProxySelector = (*WeightedProxySelector)(nil)

func NewProxySelector(logger *zap.Logger) interfaces.ProxySelector {
	return &WeightedProxySelector{
		entries:        make(map[string]*selectorEntry),
		logger:         logger,
		currentWeights: make(map[string]float64),
	}
}

// Add makes a proxy selectable; health reports its current health
func (s *WeightedProxySelector) Add(proxy models.Proxy, health func() models.HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[proxy.ID] = &selectorEntry{proxy: proxy, health: health}
	s.currentWeights[proxy.ID] = 0
}

// Remove drops a proxy from selection
func (s *WeightedProxySelector) Remove(proxyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, proxyID)
	delete(s.currentWeights, proxyID)
}

// SelectProxy selects a non-quarantined proxy using smooth weighted round-robin
func (s *WeightedProxySelector) SelectProxy() *models.Proxy {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil
	}

	// Iterate in ID order so ties resolve deterministically
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var available []*selectorEntry
	var totalWeight float64

	for _, id := range ids {
		entry := s.entries[id]
		if entry.health().State != models.HealthQuarantined && entry.proxy.Weight > 0 {
			available = append(available, entry)
			totalWeight += entry.proxy.Weight
		}
	}

	if len(available) == 0 || totalWeight == 0 {
		return nil
	}

	var selected *selectorEntry
	maxWeight := -1.0

	for _, entry := range available {
		s.currentWeights[entry.proxy.ID] += entry.proxy.Weight
		if w := s.currentWeights[entry.proxy.ID]; w > maxWeight {
			maxWeight = w
			selected = entry
		}
	}

	s.currentWeights[selected.proxy.ID] -= totalWeight

	proxy := selected.proxy
	return &proxy
}

// UpdateWeights resets current weights when health changes
func (s *WeightedProxySelector) UpdateWeights() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.currentWeights {
		s.currentWeights[id] = 0
	}
	s.logger.Debug("Selector weights reset", zap.Int("proxies", len(s.entries)))
}
