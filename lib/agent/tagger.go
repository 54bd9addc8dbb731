package agent

import "sync"

// tagger hands out connection slot numbers. Slots are reused lowest
// first so a reconnecting link gets a stable, small identifier in the
// logs instead of an ever-growing counter.
type tagger struct {
	mu   sync.Mutex
	used map[int]bool
}

func newTagger() *tagger {
	return &tagger{used: make(map[int]bool)}
}

func (t *tagger) acquire() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for slot := 0; ; slot++ {
		if !t.used[slot] {
			t.used[slot] = true
			return slot
		}
	}
}

func (t *tagger) release(slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.used, slot)
}
