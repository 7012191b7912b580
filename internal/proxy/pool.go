package proxy

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Entry is one proxy endpoint with its health state. Health counters are
// mutated only by the Pool under its lock.
type Entry struct {
	Address             string
	healthy             bool
	consecutiveFailures int
}

// Pool rotates over healthy proxy entries round-robin. An entry that fails
// the configured number of times in a row is excluded for the rest of the
// run; a later success resets the counter but never re-admits an excluded
// entry. A nil or empty pool hands out direct connections.
type Pool struct {
	mu            sync.Mutex
	entries       []*Entry
	index         int
	failThreshold int
}

const DefaultFailThreshold = 3

// NewPool creates a pool over the given proxy addresses.
func NewPool(addresses []string, failThreshold int) *Pool {
	if failThreshold <= 0 {
		failThreshold = DefaultFailThreshold
	}
	p := &Pool{failThreshold: failThreshold}
	for _, addr := range addresses {
		normalized := Normalize(addr)
		if normalized == "" {
			continue
		}
		p.entries = append(p.entries, &Entry{Address: normalized, healthy: true})
	}
	return p
}

// LoadFile reads one proxy per line, skipping blanks and # comments.
// A missing file yields an empty pool, which is the direct-connection mode.
func LoadFile(path string, failThreshold int) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewPool(nil, failThreshold), nil
		}
		return nil, fmt.Errorf("open proxies file: %w", err)
	}
	defer f.Close()

	var addresses []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addresses = append(addresses, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxies file: %w", err)
	}
	return NewPool(addresses, failThreshold), nil
}

// Normalize converts the supported proxy notations to a URL:
// host:port, host:port:user:pass, or an already-schemed http/socks URL.
// Returns "" for lines it cannot interpret.
func Normalize(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "socks") {
		return raw
	}
	parts := strings.Split(raw, ":")
	switch len(parts) {
	case 2:
		return fmt.Sprintf("http://%s:%s", parts[0], parts[1])
	case 4:
		return fmt.Sprintf("http://%s:%s@%s:%s", parts[2], parts[3], parts[0], parts[1])
	}
	return ""
}

// Acquire returns the next healthy entry in rotation, or nil when the pool
// is empty or fully excluded. nil means "use a direct connection" and is a
// valid, silent fallback. Never blocks.
func (p *Pool) Acquire() *Entry {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for attempts := 0; attempts < len(p.entries); attempts++ {
		entry := p.entries[p.index]
		p.index = (p.index + 1) % len(p.entries)
		if entry.healthy {
			return entry
		}
	}
	return nil
}

// Report records the outcome of a request made through entry. A success
// resets the failure counter; reaching the failure threshold marks the
// entry unhealthy for the remainder of the run.
func (p *Pool) Report(entry *Entry, success bool) {
	if p == nil || entry == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if success {
		entry.consecutiveFailures = 0
		return
	}
	entry.consecutiveFailures++
	if entry.consecutiveFailures >= p.failThreshold {
		entry.healthy = false
	}
}

// Total returns the number of loaded entries.
func (p *Pool) Total() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Available returns the number of entries still in rotation.
func (p *Pool) Available() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if e.healthy {
			n++
		}
	}
	return n
}
