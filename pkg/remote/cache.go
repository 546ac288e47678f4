package remote

import (
	"fmt"
	"sync"
)

// ConfigFunc returns the client configuration for an environment.
type ConfigFunc func(environment string) (Config, error)

// Cache keeps one client per environment so connections and retry state
// are shared by every command of a process.
type Cache struct {
	mu      sync.Mutex
	configs ConfigFunc
	clients map[string]*Client
}

// NewCache creates a cache that builds clients from configs on first use.
func NewCache(configs ConfigFunc) *Cache {
	return &Cache{
		configs: configs,
		clients: make(map[string]*Client),
	}
}

// Get returns the client of environment, creating it if needed.
func (c *Cache) Get(environment string) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[environment]; ok {
		return client, nil
	}
	cfg, err := c.configs(environment)
	if err != nil {
		return nil, fmt.Errorf("failed to configure client for environment %s: %w", environment, err)
	}
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for environment %s: %w", environment, err)
	}
	c.clients[environment] = client
	return client, nil
}

// Len returns the number of cached clients.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}
