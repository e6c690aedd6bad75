package channel

import (
	"sync"

	"EnvData-Apps/internal/qos"
)

// history is a reader's cache of samples not yet taken.
type history struct {
	mu         sync.Mutex
	keepLast   bool
	depth      int
	maxSamples int
	samples    []Sample
}

func newHistory(r qos.DataReaderQos) *history {
	return &history{
		keepLast:   r.History.Kind == qos.KeepLast,
		depth:      r.History.Depth,
		maxSamples: r.ResourceLimits.MaxSamples,
	}
}

// push stores s. keep_last evicts the oldest sample once depth is reached;
// keep_all refuses s once max_samples is reached.
func (h *history) push(s Sample) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.keepLast {
		if h.depth > 0 && len(h.samples) >= h.depth {
			copy(h.samples, h.samples[1:])
			h.samples = h.samples[:len(h.samples)-1]
		}
	} else if h.maxSamples > 0 && len(h.samples) >= h.maxSamples {
		return false
	}
	h.samples = append(h.samples, s)
	return true
}

// take removes and returns everything pending, oldest first.
func (h *history) take() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.samples
	h.samples = nil
	return out
}

func (h *history) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}
