// Package mirror implements the mirror pool (component F): per-patch
// mirror state with ping history, adaptive selection, and round-robin
// failover, plus a process-global pool cache keyed by the identity of
// a patch's servers list.
package mirror

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/SakuraUO/thcrap/internal/corerr"
	"github.com/SakuraUO/thcrap/internal/crc"
	"github.com/SakuraUO/thcrap/internal/xlog"
)

// pingSamples is the bounded ping-history queue length (spec.md §3).
const pingSamples = 4

// Mirror is one HTTP origin serving a patch's files.
type Mirror struct {
	URL     string
	ping    [pingSamples]int64
	active  bool
	visited bool
}

func newMirror(url string) *Mirror {
	return &Mirror{URL: url, active: true}
}

// Active reports whether this mirror is still eligible for selection.
func (m *Mirror) Active() bool { return m.active }

// Visited reports whether any attempt has been made on this mirror.
func (m *Mirror) Visited() bool { return m.visited }

// disable marks the mirror permanently inactive for the remainder of
// the process's use of this pool instance (it is re-enabled only by
// constructing a fresh pool, e.g. a new process run).
func (m *Mirror) disable() { m.active = false }

// pingAverage is the mean of non-zero samples, or 0 if all are zero.
func (m *Mirror) pingAverage() int64 {
	var sum int64
	var n int64
	for _, v := range m.ping {
		if v != 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// pushPing records a new connect-time sample, dropping the oldest.
func (m *Mirror) pushPing(v int64) {
	copy(m.ping[:], m.ping[1:])
	m.ping[pingSamples-1] = v
}

// Pool holds the mirror state for one patch.
type Pool struct {
	mu      sync.Mutex
	mirrors []*Mirror
}

// Backend performs the actual byte transfer for one mirror attempt.
// Implementations classify failures the same way the HTTP downloader
// does (corerr.NetError / corerr.IntegrityError / corerr.ErrCancelled
// / corerr.ErrResourceExhausted); any non-nil error disables the
// mirror for the remainder of the request.
type Backend interface {
	// Fetch retrieves key relative to baseURL (already joined by the
	// caller per JoinURL), invoking progress on each chunk. pingMs is
	// the observed connect-time sample to push into the mirror's ping
	// history on success.
	Fetch(ctx context.Context, url string, progress func(done, total int64) bool) (data []byte, pingMs int64, err error)
}

// New builds a mirror pool from a patch's servers array. Entries that
// do not contain "://" at position >= 1 are rejected with a warning
// and skipped, matching servers_t::from's validation.
func New(servers []string) *Pool {
	p := &Pool{}
	for i, s := range servers {
		if !looksLikeURL(s) {
			xlog.Warn("mirror: not a URI at position %d: %q", i+1, s)
			continue
		}
		p.mirrors = append(p.mirrors, newMirror(s))
	}
	return p
}

func looksLikeURL(s string) bool {
	idx := strings.Index(s, "://")
	return idx >= 1
}

// GetFirst selects the next mirror to try: any unused mirror first,
// else the visited mirror with the lowest non-zero ping average (ties
// go to the earlier mirror), else the first visited mirror with no
// non-zero sample, else -1 if none are eligible.
func (p *Pool) GetFirst() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getFirstLocked()
}

func (p *Pool) getFirstLocked() int {
	fastest := -1
	tryout := -1
	unmeasured := -1
	var lastTime int64 = -1

	for i, m := range p.mirrors {
		if !m.active {
			continue
		}
		if !m.visited {
			if tryout == -1 {
				tryout = i
			}
			continue
		}
		avg := m.pingAverage()
		if avg == 0 {
			if unmeasured == -1 {
				unmeasured = i
			}
			continue
		}
		if lastTime == -1 || avg < lastTime {
			lastTime = avg
			fastest = i
		}
	}
	if tryout != -1 {
		return tryout
	}
	if fastest != -1 {
		return fastest
	}
	return unmeasured
}

// NumActive returns the number of mirrors still eligible for use.
func (p *Pool) NumActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.mirrors {
		if m.active {
			n++
		}
	}
	return n
}

// Len returns the number of configured mirrors (including disabled ones).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.mirrors)
}

// Download fetches key from the pool, round-robining across mirrors
// starting at GetFirst() and trying each at most once. expectCRC, if
// non-nil, is verified against the fetched bytes; a mismatch disables
// the mirror and is treated like any other failure. Returns the bytes
// on success, or corerr.ErrNotFound-shaped "offline" when every
// eligible mirror has failed.
func (p *Pool) Download(ctx context.Context, backend Backend, key string, expectCRC *uint32, progress func(done, total int64) bool) ([]byte, error) {
	p.mu.Lock()
	total := len(p.mirrors)
	first := p.getFirstLocked()
	p.mu.Unlock()

	if total == 0 || first < 0 {
		return nil, fmt.Errorf("mirror: no mirrors available: %w", corerr.ErrNotFound)
	}

	left := total
	for i := first; left > 0; i = (i + 1) % total {
		left--

		p.mu.Lock()
		m := p.mirrors[i]
		active := m.active
		if active {
			m.visited = true
		}
		p.mu.Unlock()
		if !active {
			continue
		}
		if i != first {
			xlog.Info("mirror: retrying on %s", m.URL)
		}

		url := JoinURL(m.URL, key)
		data, pingMs, err := backend.Fetch(ctx, url, progress)
		if err != nil {
			xlog.Warn("mirror: %s failed: %v", m.URL, err)
			p.mu.Lock()
			m.disable()
			p.mu.Unlock()
			continue
		}
		if len(data) == 0 {
			xlog.Warn("mirror: %s returned 0-byte file", m.URL)
			p.mu.Lock()
			m.disable()
			p.mu.Unlock()
			continue
		}
		if expectCRC != nil {
			got := crc.Bytes(data)
			if got != *expectCRC {
				xlog.Warn("mirror: %s CRC32 mismatch for %s", m.URL, key)
				p.mu.Lock()
				m.disable()
				p.mu.Unlock()
				continue
			}
		}

		p.mu.Lock()
		m.pushPing(pingMs)
		p.mu.Unlock()
		return data, nil
	}

	return nil, fmt.Errorf("mirror: all mirrors exhausted for %s: %w", key, corerr.ErrNotFound)
}

// JoinURL concatenates a mirror's base URL and a manifest key,
// respecting whether the base ends in "/" and whether key begins
// with "/", rather than relying on a host URL-normalizer.
func JoinURL(base, key string) string {
	b := strings.TrimSuffix(base, "/")
	k := strings.TrimPrefix(key, "/")
	return b + "/" + k
}

// cache is the process-global pool cache, keyed by the identity of
// a patch's servers slice (its backing array pointer), matching
// servers_cache's pointer-identity map.
var (
	cacheMu sync.RWMutex
	cache   = map[uintptr]*Pool{}
)

// serversIdentity returns a stable identity for a []string's backing
// array, analogous to the original's json_t* pointer-identity key.
func serversIdentity(servers []string) uintptr {
	if len(servers) == 0 {
		return 0
	}
	return reflect.ValueOf(servers).Pointer()
}

// ForPatchServers returns the process-global pool for this servers
// slice, constructing one on first use. Subsequent calls with the
// same backing slice reuse the pool (and its accumulated ping
// history / disabled state) for the remainder of the process.
func ForPatchServers(servers []string) *Pool {
	key := serversIdentity(servers)
	cacheMu.RLock()
	p, ok := cache[key]
	cacheMu.RUnlock()
	if ok {
		return p
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if p, ok := cache[key]; ok {
		return p
	}
	p = New(servers)
	cache[key] = p
	return p
}
