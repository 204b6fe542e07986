package httpserver

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	peerSweepInterval = 5 * time.Minute
	peerIdleExpiry    = 10 * time.Minute
)

// limitReason describes why a subscribe attempt was refused. It doubles as
// the metric label.
type limitReason string

const (
	limitReasonNone   limitReason = ""
	limitReasonRate   limitReason = "rate_limit"
	limitReasonGlobal limitReason = "global_limit"
	limitReasonPerIP  limitReason = "per_ip_limit"
	limitReasonOrigin limitReason = "origin"
)

// connectionLimits admits WebSocket sessions: a token bucket per IP for new
// connections, a cap on concurrent connections per IP and a global cap.
type connectionLimits struct {
	clock    clockwork.Clock
	maxTotal int
	maxPerIP int
	rate     rate.Limit
	burst    int

	mu      sync.Mutex
	total   int
	peers   map[string]*peerState
	sweepAt time.Time
}

type peerState struct {
	open     int
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newConnectionLimits(clock clockwork.Clock, maxTotal, maxPerIP int, connectionsPerSecond float64, burst int) *connectionLimits {
	return &connectionLimits{
		clock:    clock,
		maxTotal: maxTotal,
		maxPerIP: maxPerIP,
		rate:     rate.Limit(connectionsPerSecond),
		burst:    burst,
		peers:    make(map[string]*peerState),
		sweepAt:  clock.Now().Add(peerSweepInterval),
	}
}

// acquire reserves a slot for ip. A refused attempt returns the reason and
// holds nothing; an admitted one must be paired with release.
func (l *connectionLimits) acquire(ip string) limitReason {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.sweepAt) {
		l.sweep(now)
		l.sweepAt = now.Add(peerSweepInterval)
	}

	peer, ok := l.peers[ip]
	if !ok {
		peer = &peerState{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.peers[ip] = peer
	}
	peer.lastSeen = now

	// rate first, so a flood of refused attempts still drains the bucket
	if !peer.limiter.AllowN(now, 1) {
		return limitReasonRate
	}
	if l.total >= l.maxTotal {
		return limitReasonGlobal
	}
	if peer.open >= l.maxPerIP {
		return limitReasonPerIP
	}

	peer.open++
	l.total++
	return limitReasonNone
}

func (l *connectionLimits) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	peer, ok := l.peers[ip]
	if !ok || peer.open == 0 {
		return
	}
	peer.open--
	l.total--
	peer.lastSeen = l.clock.Now()
}

// sweep forgets idle peers with no open connections. Must be called with mu held.
func (l *connectionLimits) sweep(now time.Time) {
	cutoff := now.Add(-peerIdleExpiry)
	for ip, peer := range l.peers {
		if peer.open == 0 && peer.lastSeen.Before(cutoff) {
			delete(l.peers, ip)
		}
	}
}

func (l *connectionLimits) current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

