package detection

import (
	"time"

	"lookout/config"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// request is one frame submitted to the batched path. The engine owns the Mat
// from submission until the batch completes.
type request struct {
	id    int64
	frame gocv.Mat
}

// Result pairs a frame ID with its filtered detections.
type Result struct {
	FrameID    int64
	Detections []Detection
}

// Engine wraps a detector backend behind a batching scheduler. The immediate
// path serves the latency-sensitive analysis loop; the batched path amortizes
// inference cost for background workloads.
type Engine struct {
	cfg     config.DetectionConfig
	backend Backend

	requests chan request
	results  chan Result

	stopCh chan struct{}
	done   chan struct{}
}

// NewEngine creates the engine around the given backend.
func NewEngine(cfg config.DetectionConfig, backend Backend) *Engine {
	return &Engine{
		cfg:      cfg,
		backend:  backend,
		requests: make(chan request, cfg.QueueSize),
		results:  make(chan Result, cfg.QueueSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the batching worker.
func (e *Engine) Start() {
	go e.batchLoop()
	log.Infof("Detection engine started (backend=%s, batch=%d, window=%dms)",
		e.backend.Name(), e.cfg.BatchSize, e.cfg.BatchWindowMs)
}

// Stop shuts the batching worker down. Requests still queued are discarded.
func (e *Engine) Stop() {
	close(e.stopCh)
	select {
	case <-e.done:
	case <-time.After(2 * time.Second):
		log.Warn("Detection batch worker did not stop in time")
	}
	e.backend.Close()
}

// DetectImmediate runs the backend synchronously on a single frame. A backend
// failure yields an empty result, never an error to the caller.
func (e *Engine) DetectImmediate(frame gocv.Mat) []Detection {
	batches, err := e.backend.DetectBatch([]gocv.Mat{frame})
	if err != nil {
		log.WithError(err).Warn("Immediate detection failed")
		return nil
	}
	if len(batches) == 0 {
		return nil
	}
	return Filter(batches[0], e.cfg)
}

// Submit queues a frame for batched detection, taking ownership of the Mat.
// When the queue is full the frame is dropped and closed; the source reader
// must never be stalled by a slow consumer.
func (e *Engine) Submit(frameID int64, frame gocv.Mat) bool {
	select {
	case e.requests <- request{id: frameID, frame: frame}:
		return true
	default:
		frame.Close()
		log.Debugf("Detection queue full, dropping frame %d", frameID)
		return false
	}
}

// Poll waits up to timeout for the next batched result.
func (e *Engine) Poll(timeout time.Duration) (Result, bool) {
	select {
	case r := <-e.results:
		return r, true
	case <-time.After(timeout):
		return Result{}, false
	}
}

// batchLoop accumulates requests into fixed-size batches over the collection
// window and runs one inference call per batch.
func (e *Engine) batchLoop() {
	defer close(e.done)
	for {
		var first request
		select {
		case <-e.stopCh:
			e.drain()
			return
		case first = <-e.requests:
		}

		batch := []request{first}
		window := time.After(time.Duration(e.cfg.BatchWindowMs) * time.Millisecond)
	collect:
		for len(batch) < e.cfg.BatchSize {
			select {
			case <-e.stopCh:
				for _, r := range batch {
					r.frame.Close()
				}
				e.drain()
				return
			case r := <-e.requests:
				batch = append(batch, r)
			case <-window:
				break collect
			}
		}

		e.runBatch(batch)
	}
}

// runBatch pads an under-filled batch by duplicating the last real frame so
// the backend always sees a constant batch size, then publishes only the real
// results.
func (e *Engine) runBatch(batch []request) {
	defer func() {
		for _, r := range batch {
			r.frame.Close()
		}
	}()

	frames := make([]gocv.Mat, 0, e.cfg.BatchSize)
	for _, r := range batch {
		frames = append(frames, r.frame)
	}
	for len(frames) < e.cfg.BatchSize {
		frames = append(frames, batch[len(batch)-1].frame)
	}

	batches, err := e.backend.DetectBatch(frames)
	if err != nil {
		log.WithError(err).Warnf("Batch detection failed for %d frames", len(batch))
		for _, r := range batch {
			e.publish(Result{FrameID: r.id})
		}
		return
	}

	// Padding results beyond the real requests are discarded here.
	for i, r := range batch {
		var dets []Detection
		if i < len(batches) {
			dets = Filter(batches[i], e.cfg)
		}
		e.publish(Result{FrameID: r.id, Detections: dets})
	}
}

func (e *Engine) publish(r Result) {
	select {
	case e.results <- r:
	default:
		log.Debugf("Detection result queue full, dropping result for frame %d", r.FrameID)
	}
}

func (e *Engine) drain() {
	for {
		select {
		case r := <-e.requests:
			r.frame.Close()
		default:
			return
		}
	}
}
