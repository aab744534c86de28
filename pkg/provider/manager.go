// Package provider routes generation requests to the client serving a model.
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

type route struct {
	prefix string
	client ports.Provider
}

// Manager implements ports.Provider by dispatching on model name prefixes.
// Routes are tried longest prefix first.
type Manager struct {
	mu       sync.RWMutex
	routes   []route
	fallback ports.Provider
}

// NewManager returns a manager with the echo client registered for the
// "fc-mock-" models.
func NewManager() *Manager {
	m := &Manager{}
	m.Register(EchoPrefix, Echo{})
	return m
}

// Register serves every model starting with prefix with client.
func (m *Manager) Register(prefix string, client ports.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.routes {
		if m.routes[i].prefix == prefix {
			m.routes[i].client = client
			return
		}
	}
	m.routes = append(m.routes, route{prefix: prefix, client: client})
	for i := len(m.routes) - 1; i > 0 && len(m.routes[i].prefix) > len(m.routes[i-1].prefix); i-- {
		m.routes[i], m.routes[i-1] = m.routes[i-1], m.routes[i]
	}
}

// SetFallback serves models no prefix matched.
func (m *Manager) SetFallback(client ports.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = client
}

func (m *Manager) client(model string) (ports.Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.routes {
		if strings.HasPrefix(model, r.prefix) {
			return r.client, true
		}
	}
	if m.fallback != nil {
		return m.fallback, true
	}
	return nil, false
}

func (m *Manager) Generate(ctx context.Context, model string, req ports.GenRequest) (string, error) {
	c, ok := m.client(model)
	if !ok {
		return "", fmt.Errorf("%w: '%s'", domain.ErrModelNotImplemented, model)
	}
	return c.Generate(ctx, model, req)
}
