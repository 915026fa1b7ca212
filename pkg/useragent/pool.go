package useragent

import (
	"strings"
	"sync/atomic"
)

// Default is the identifying User-Agent sent when no pool is configured.
// DuckDuckGo's HTML endpoint serves its plain result list to it.
const Default = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.14; rv:68.0) Gecko/20100101 Firefox/68.0"

// Pool hands out User-Agent strings in round-robin order.
type Pool struct {
	uas  []string
	next atomic.Uint64
}

// NewPool creates a pool from the given User-Agents. Blank entries are
// dropped; if nothing is left the pool holds only Default.
func NewPool(uas []string) *Pool {
	kept := make([]string, 0, len(uas))
	for _, ua := range uas {
		if ua = strings.TrimSpace(ua); ua != "" {
			kept = append(kept, ua)
		}
	}
	if len(kept) == 0 {
		kept = []string{Default}
	}
	return &Pool{uas: kept}
}

// Get returns the next User-Agent. It is safe for concurrent use.
func (p *Pool) Get() string {
	idx := p.next.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Len reports how many User-Agents the pool rotates through.
func (p *Pool) Len() int {
	return len(p.uas)
}

// All returns a copy of the pool contents.
func (p *Pool) All() []string {
	out := make([]string, len(p.uas))
	copy(out, p.uas)
	return out
}
