package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool never handed out.
var ErrUnknownProxy = errors.New("proxy: not in pool")

type entry struct {
	url       *url.URL
	key       string
	failures  int
	benchedAt time.Time
	benched   bool
}

// Pool rotates through upstream proxies and benches the ones that keep failing.
type Pool struct {
	mu       sync.Mutex
	entries  []*entry
	cursor   int
	maxFails int
	cooldown time.Duration
	now      func() time.Time
}

// Config tunes the benching behaviour.
type Config struct {
	// MaxFailures consecutive failures bench a proxy.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
}

// NewPool creates an empty pool. Zero config values default to 3 failures
// and a five minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFails: cfg.MaxFailures,
		cooldown: cfg.Cooldown,
		now:      time.Now,
	}
}

// LoadFile adds one proxy per line from path; blank lines and '#' comments
// are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}
	return p.Add(lines...)
}

// Add registers proxies. Entries without a scheme are taken as http.
func (p *Pool) Add(raw ...string) error {
	parsed := make([]*entry, 0, len(raw))
	for _, r := range raw {
		if !strings.Contains(r, "://") {
			r = "http://" + r
		}
		u, err := url.Parse(r)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", r, err)
		}
		parsed = append(parsed, &entry{url: u, key: u.String()})
	}

	p.mu.Lock()
	p.entries = append(p.entries, parsed...)
	p.mu.Unlock()
	return nil
}

// Len reports the number of registered proxies, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy that is not benched, or nil if none is usable.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.cursor]
		p.cursor = (p.cursor + 1) % len(p.entries)

		if e.benched && now.Sub(e.benchedAt) >= p.cooldown {
			e.benched = false
			e.failures = 0
		}
		if !e.benched {
			return e.url
		}
	}
	return nil
}

// MarkSuccess clears the failure streak of u.
func (p *Pool) MarkSuccess(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.lookup(u)
	if err != nil {
		return err
	}
	e.failures = 0
	return nil
}

// MarkFailure extends the failure streak of u and benches it once the streak
// reaches the configured maximum.
func (p *Pool) MarkFailure(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.lookup(u)
	if err != nil {
		return err
	}
	e.failures++
	if e.failures >= p.maxFails {
		e.benched = true
		e.benchedAt = p.now()
	}
	return nil
}

// lookup must be called with p.mu held.
func (p *Pool) lookup(u *url.URL) (*entry, error) {
	if u == nil {
		return nil, ErrUnknownProxy
	}
	key := u.String()
	for _, e := range p.entries {
		if e.key == key {
			return e, nil
		}
	}
	return nil, ErrUnknownProxy
}
