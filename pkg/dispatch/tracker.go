package dispatch

import "sync"

// tracker remembers which in-flight dispatches work on which message, so a
// deleted message can abandon them.
type tracker struct {
	mu       sync.Mutex
	messages map[string]map[*exchange]struct{}
	owned    map[*exchange][]string
}

func newTracker() *tracker {
	return &tracker{
		messages: make(map[string]map[*exchange]struct{}),
		owned:    make(map[*exchange][]string),
	}
}

func (t *tracker) watch(messageID string, ex *exchange) {
	if ex == nil || ex.cancel == nil || messageID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.messages[messageID]
	if !ok {
		set = make(map[*exchange]struct{})
		t.messages[messageID] = set
	}
	if _, ok := set[ex]; ok {
		return
	}
	set[ex] = struct{}{}
	t.owned[ex] = append(t.owned[ex], messageID)
}

func (t *tracker) release(ex *exchange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.owned[ex] {
		if set := t.messages[id]; set != nil {
			delete(set, ex)
			if len(set) == 0 {
				delete(t.messages, id)
			}
		}
	}
	delete(t.owned, ex)
}

// cancel abandons every dispatch working on messageID and returns how many.
func (t *tracker) cancel(messageID string) int {
	t.mu.Lock()
	set := t.messages[messageID]
	exs := make([]*exchange, 0, len(set))
	for ex := range set {
		exs = append(exs, ex)
	}
	t.mu.Unlock()

	for _, ex := range exs {
		ex.cancel()
	}
	return len(exs)
}

func (t *tracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.owned)
}
