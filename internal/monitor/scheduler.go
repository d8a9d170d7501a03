// Package monitor schedules per-device polling: one recurring timer per
// device, staggered first polls, a global in-flight bound, and
// retry-with-delay inside each poll.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/HerbHall/wispwatch/internal/remote"
	"github.com/HerbHall/wispwatch/internal/telemetry"
	"github.com/HerbHall/wispwatch/pkg/models"
	"go.uber.org/zap"
)

// DeviceSource hands out descriptors with decrypted credentials. The
// scheduler re-fetches before every poll so each attempt sees the
// freshest configuration.
type DeviceSource interface {
	GetWithCredentials(ctx context.Context, id string) (models.Device, error)
}

// Cache receives every poll outcome.
type Cache interface {
	UpdateCache(ctx context.Context, deviceID string, status models.DeviceStatus, metrics models.Metrics) error
}

// Notifier receives every poll outcome after the cache, exactly once.
type Notifier interface {
	HandleResult(ctx context.Context, dev models.Device, res models.Result)
}

// Config tunes the scheduler's global behavior.
type Config struct {
	// MaxConcurrent bounds in-flight polls across all devices.
	MaxConcurrent int
	// StaggerStep spaces the first polls of devices registered in the
	// same reload batch.
	StaggerStep time.Duration
}

// Scheduler owns one timer loop per registered device.
type Scheduler struct {
	source    DeviceSource
	extractor telemetry.Extractor
	cache     Cache
	notifier  Notifier
	cfg       Config
	logger    *zap.Logger

	sem chan struct{}

	mu       sync.Mutex
	timers   map[string]*deviceTimer
	inFlight map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // timer loops; polls are deliberately detached
}

type deviceTimer struct {
	interval time.Duration
	cancel   context.CancelFunc
}

// NewScheduler creates a scheduler. Zero config fields fall back to
// 10 concurrent polls and a 2s stagger step.
func NewScheduler(source DeviceSource, extractor telemetry.Extractor, cache Cache, notifier Notifier, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.StaggerStep <= 0 {
		cfg.StaggerStep = 2 * time.Second
	}
	return &Scheduler{
		source:    source,
		extractor: extractor,
		cache:     cache,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		timers:    make(map[string]*deviceTimer),
		inFlight:  make(map[string]bool),
	}
}

// Start arms the scheduler. Reload installs the actual timers.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx, s.cancel = context.WithCancel(ctx)
}

// Running reports whether the scheduler accepts reloads and polls.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil && s.ctx.Err() == nil
}

// Reload reconciles timers against the current device list. Unchanged
// intervals keep their timer; changed ones are reinstalled; devices
// gone from the list are cancelled. Newly registered devices get
// staggered first polls so a batch does not fire simultaneously.
func (s *Scheduler) Reload(devices []models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}

	seen := make(map[string]bool, len(devices))
	batchIdx := 0

	for _, dev := range devices {
		seen[dev.ID] = true

		existing, known := s.timers[dev.ID]
		if known {
			if existing.interval == dev.PollInterval {
				continue // no redundant rescheduling
			}
			existing.cancel()
			s.logger.Debug("poll interval changed, reinstalling timer",
				zap.String("device_id", dev.ID),
				zap.Duration("interval", dev.PollInterval),
			)
		}

		var initial time.Duration
		if known {
			initial = dev.PollInterval
		} else {
			batchIdx++
			initial = s.cfg.StaggerStep * time.Duration(batchIdx)
		}

		dctx, cancel := context.WithCancel(s.ctx)
		s.timers[dev.ID] = &deviceTimer{interval: dev.PollInterval, cancel: cancel}
		s.wg.Add(1)
		go s.runDevice(dctx, dev.ID, dev.PollInterval, initial)
	}

	for id, t := range s.timers {
		if !seen[id] {
			t.cancel()
			delete(s.timers, id)
			s.logger.Debug("device gone, timer cancelled", zap.String("device_id", id))
		}
	}
}

// Stop cancels all timers. In-flight polls keep running and write their
// results asynchronously; no new poll starts after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.timers = make(map[string]*deviceTimer)
	s.mu.Unlock()

	// Timer loops exit promptly on cancellation; polls are not waited on.
	s.wg.Wait()
}

// runDevice is one device's timer loop: first fire after the initial
// offset, then every interval. The global semaphore is acquired before
// a poll starts, so at most MaxConcurrent polls are in flight. A fire
// that lands while the device's previous poll is still running is
// skipped, so each device has at most one poll in flight. The guard is
// held on the scheduler rather than the loop so it survives a timer
// reinstall.
func (s *Scheduler) runDevice(ctx context.Context, id string, interval, initial time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(initial)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !s.beginPoll(id) {
			s.logger.Debug("previous poll still running, skipping fire", zap.String("device_id", id))
			timer.Reset(interval)
			continue
		}

		select {
		case <-ctx.Done():
			s.endPoll(id)
			return
		case s.sem <- struct{}{}:
		}
		go s.poll(id)

		timer.Reset(interval)
	}
}

func (s *Scheduler) beginPoll(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Scheduler) endPoll(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// poll runs one poll invocation: fetch the fresh descriptor, retry the
// extractor per the device's policy, and forward the outcome to the
// cache and then the notifier. Detached from the scheduler context so a
// poll in flight during Stop still completes.
func (s *Scheduler) poll(id string) {
	defer func() {
		<-s.sem
		s.endPoll(id)
	}()

	fetchCtx, fetchCancel := context.WithTimeout(context.Background(), 10*time.Second)
	dev, err := s.source.GetWithCredentials(fetchCtx, id)
	fetchCancel()
	if err != nil {
		// Deleted between timer fire and fetch, or store trouble.
		s.logger.Warn("could not load device for poll", zap.String("device_id", id), zap.Error(err))
		return
	}

	attempts := dev.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	// The overall budget covers every attempt plus the delays between them.
	budget := time.Duration(attempts)*remote.OperationTimeout + time.Duration(attempts-1)*dev.RetryDelay
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	var res models.Result
	for attempt := 1; ; attempt++ {
		res = s.extractor.Extract(ctx, dev)
		if res.OK || attempt >= attempts {
			break
		}
		s.logger.Debug("poll attempt failed, retrying",
			zap.String("device_id", dev.ID),
			zap.Int("attempt", attempt),
			zap.String("error", res.Err),
		)
		time.Sleep(dev.RetryDelay)
	}

	status := models.StatusOnline
	if !res.OK {
		status = models.StatusOffline
		s.logger.Warn("poll failed",
			zap.String("device_id", dev.ID),
			zap.String("device", dev.Name),
			zap.String("error", res.Err),
		)
	}

	if err := s.cache.UpdateCache(ctx, dev.ID, status, res.Metrics); err != nil {
		s.logger.Warn("cache update failed", zap.String("device_id", dev.ID), zap.Error(err))
	}
	s.notifier.HandleResult(ctx, dev, res)
}
