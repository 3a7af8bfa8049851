package collyfetcher

import "sync"

// DefaultUserAgents is the pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// UserAgentRotator cycles through a fixed pool of browser-like identities.
type UserAgentRotator struct {
	mu     sync.Mutex
	agents []string
	next   int
}

// NewUserAgentRotator copies agents, falling back to DefaultUserAgents when empty.
func NewUserAgentRotator(agents []string) *UserAgentRotator {
	pool := make([]string, 0, len(agents))
	for _, a := range agents {
		if a != "" {
			pool = append(pool, a)
		}
	}
	if len(pool) == 0 {
		pool = append(pool, DefaultUserAgents...)
	}
	return &UserAgentRotator{agents: pool}
}

// Current returns the identity for the next attempt.
func (r *UserAgentRotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[r.next]
}

// Rotate advances to the next identity.
func (r *UserAgentRotator) Rotate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = (r.next + 1) % len(r.agents)
}
