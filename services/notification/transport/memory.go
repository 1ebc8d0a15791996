package transport

import (
	"context"
	"fmt"
	"sync"

	"ankaa/models"
)

// Sent is one message captured by MemoryTransport.
type Sent struct {
	Address string
	Payload models.ChannelPayload
}

// MemoryTransport captures sends in memory. Scripted errors are returned by
// successive Send calls before it starts succeeding.
type MemoryTransport struct {
	channel models.Channel

	mu         sync.Mutex
	ready      bool
	errs       []error
	sent       []Sent
	calls      int
	registered map[string]bool
}

func NewMemoryTransport(ch models.Channel) *MemoryTransport {
	return &MemoryTransport{channel: ch, ready: true}
}

func (m *MemoryTransport) Channel() models.Channel {
	return m.channel
}

func (m *MemoryTransport) IsReady(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *MemoryTransport) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

// FailWith queues errors for the next Send calls.
func (m *MemoryTransport) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

func (m *MemoryTransport) Send(_ context.Context, address string, payload models.ChannelPayload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", err
	}
	m.sent = append(m.sent, Sent{Address: address, Payload: payload})
	return fmt.Sprintf("%s-%d", m.channel, len(m.sent)), nil
}

// Sent returns a copy of every successful send.
func (m *MemoryTransport) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// Calls counts every Send, failed or not.
func (m *MemoryTransport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// RegistryMemoryTransport is a MemoryTransport that also answers IsRegistered.
type RegistryMemoryTransport struct {
	*MemoryTransport
}

// WithRegistry returns a variant implementing RegistrationChecker that
// reports only the given addresses as registered.
func (m *MemoryTransport) WithRegistry(addresses ...string) *RegistryMemoryTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = make(map[string]bool, len(addresses))
	for _, a := range addresses {
		m.registered[a] = true
	}
	return &RegistryMemoryTransport{MemoryTransport: m}
}

func (r *RegistryMemoryTransport) IsRegistered(_ context.Context, address string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registered[address], nil
}
