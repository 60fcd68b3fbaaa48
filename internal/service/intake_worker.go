package service

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"certintake/internal/port"
)

// IntakeWorkerConfig holds settings for the intake worker.
type IntakeWorkerConfig struct {
	Bucket        string
	PendingPrefix string
	PollInterval  time.Duration
	Concurrency   int
	BatchSize     int
	Timeout       time.Duration
}

// IntakeWorker polls the pending prefix and dispatches each raw message to the
// intake service. A key is never dispatched twice while it is in flight.
type IntakeWorker struct {
	storage port.ObjectStorage
	intake  IntakeService
	cfg     IntakeWorkerConfig

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewIntakeWorker creates a new IntakeWorker.
func NewIntakeWorker(storage port.ObjectStorage, intake IntakeService, cfg IntakeWorkerConfig) *IntakeWorker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &IntakeWorker{
		storage:  storage,
		intake:   intake,
		cfg:      cfg,
		inFlight: make(map[string]struct{}),
	}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight messages have finished.
func (w *IntakeWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)

	log.Printf("intakeWorker: started (poll=%s, concurrency=%d, prefix=%s)",
		w.cfg.PollInterval, w.cfg.Concurrency, w.cfg.PendingPrefix)

	for {
		select {
		case <-ctx.Done():
			log.Printf("intakeWorker: shutting down, waiting for in-flight messages...")
			_ = g.Wait()
			log.Printf("intakeWorker: shutdown complete")
			return
		case <-ticker.C:
			w.Poll(ctx, &g)
		}
	}
}

// Poll lists pending messages once and dispatches those not already in flight.
// Dispatch blocks while the group is at its concurrency limit.
func (w *IntakeWorker) Poll(ctx context.Context, g *errgroup.Group) int {
	objects, err := w.storage.List(ctx, w.cfg.Bucket, w.cfg.PendingPrefix, w.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("intakeWorker: List error: %v", err)
		}
		return 0
	}

	dispatched := 0
	for _, obj := range objects {
		if !w.claim(obj.Key) {
			continue
		}
		key := obj.Key
		dispatched++
		g.Go(func() error {
			defer w.release(key)

			// A fresh context lets in-flight messages complete during shutdown.
			msgCtx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
			defer cancel()

			log.Printf("intakeWorker: dispatching %s", key)
			out, err := w.intake.ProcessMessage(msgCtx, key)
			if err != nil {
				log.Printf("intakeWorker: %s failed: %v", key, err)
				return nil
			}
			if out != nil && out.Kind != "" {
				log.Printf("intakeWorker: %s rejected as %s", key, out.Kind)
			}
			return nil
		})
	}
	return dispatched
}

func (w *IntakeWorker) claim(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[key]; busy {
		return false
	}
	w.inFlight[key] = struct{}{}
	return true
}

func (w *IntakeWorker) release(key string) {
	w.mu.Lock()
	delete(w.inFlight, key)
	w.mu.Unlock()
}
