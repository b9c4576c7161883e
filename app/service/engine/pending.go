package engine

import (
	"sync"
	"time"
)

// pendingReminder is a reminder suggestion awaiting the sender's yes/no.
type pendingReminder struct {
	Subject   string
	Suggested time.Time
	Since     time.Time
}

// pendingSet holds at most one open confirmation per sender. Entries older
// than the timeout are swept on every access so an abandoned confirmation
// cannot shadow later messages forever.
type pendingSet struct {
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]pendingReminder
}

func newPendingSet(timeout time.Duration) *pendingSet {
	return &pendingSet{
		timeout: timeout,
		entries: make(map[string]pendingReminder),
	}
}

func (p *pendingSet) open(sender, subject string, suggested time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries[sender] = pendingReminder{
		Subject:   subject,
		Suggested: suggested,
		Since:     time.Now(),
	}
}

func (p *pendingSet) get(sender string) (pendingReminder, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweepLocked(time.Now())

	entry, ok := p.entries[sender]
	return entry, ok
}

func (p *pendingSet) updateSuggestion(sender string, suggested time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.entries[sender]; ok {
		entry.Suggested = suggested
		p.entries[sender] = entry
	}
}

func (p *pendingSet) close(sender string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.entries, sender)
}

func (p *pendingSet) sweepLocked(now time.Time) {
	for sender, entry := range p.entries {
		if now.Sub(entry.Since) > p.timeout {
			delete(p.entries, sender)
		}
	}
}
