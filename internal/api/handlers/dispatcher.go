package handlers

import (
	"sync"
	"sync/atomic"
	"time"

	"lookout/internal/detection"

	"gocv.io/x/gocv"
)

// resultDispatcher correlates batched detection results with the request that
// submitted the frame. The detector finishes frames in completion order on a
// shared channel; each waiting request gets its own reply channel keyed by
// frame ID, so concurrent analyses never consume each other's results.
type resultDispatcher struct {
	detector BatchDetector
	frameSeq int64

	mu      sync.Mutex
	pending map[int64]chan detection.Result

	once sync.Once
}

func newResultDispatcher(detector BatchDetector) *resultDispatcher {
	return &resultDispatcher{
		detector: detector,
		pending:  make(map[int64]chan detection.Result),
	}
}

// submit queues a frame and returns the channel its result will arrive on.
// The detector takes ownership of the Mat. The bool reports whether the
// frame was accepted.
func (d *resultDispatcher) submit(frame gocv.Mat) (int64, <-chan detection.Result, bool) {
	d.once.Do(func() { go d.run() })

	frameID := atomic.AddInt64(&d.frameSeq, 1)
	reply := make(chan detection.Result, 1)

	d.mu.Lock()
	d.pending[frameID] = reply
	d.mu.Unlock()

	if !d.detector.Submit(frameID, frame) {
		d.cancel(frameID)
		return 0, nil, false
	}
	return frameID, reply, true
}

// cancel abandons a pending frame after a timeout or a failed submit.
func (d *resultDispatcher) cancel(frameID int64) {
	d.mu.Lock()
	delete(d.pending, frameID)
	d.mu.Unlock()
}

// run drains the detector's results and routes each one to the request that
// is waiting on it. A result whose requester already gave up is dropped.
func (d *resultDispatcher) run() {
	for {
		res, ok := d.detector.Poll(time.Second)
		if !ok {
			continue
		}

		d.mu.Lock()
		reply, waiting := d.pending[res.FrameID]
		delete(d.pending, res.FrameID)
		d.mu.Unlock()

		if waiting {
			reply <- res
		}
	}
}
