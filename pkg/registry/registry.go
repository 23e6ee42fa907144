// Package registry tracks every open two-copy barrier buffer instance
// in the process and drives their periodic commits from a single shared
// ticker goroutine, rather than giving each instance its own timer.
package registry

import (
	"errors"
	"sync"
	"time"
)

// Committable is anything the shared timer can tick and the shutdown
// hook can close. pkg/buffer.TwoCopyBarrierBuffer is the only
// implementation in this module, but the interface keeps pkg/registry
// free of any dependency on pkg/buffer's types.
type Committable interface {
	// Tick is invoked periodically from the shared timer goroutine. The
	// implementation decides for itself whether enough time has elapsed
	// to commit.
	Tick(now time.Time)

	// Close releases the instance's resources. Called by Shutdown.
	Close() error
}

// Handle identifies a registered instance for Unregister.
type Handle struct {
	id uint64
}

var (
	mu        sync.Mutex
	instances = make(map[uint64]Committable)
	nextID    uint64

	tickerOnce sync.Once
	tickerStop chan struct{}

	// TickInterval is how often the shared timer calls Tick on every
	// registered instance. Default matches a fraction of the default
	// asynchronousCommitDelay (5000ms) so commits fire close to on time.
	TickInterval = 250 * time.Millisecond
)

// Register adds c to the process-wide registry and starts the shared
// timer goroutine if it is not already running.
func Register(c Committable) Handle {
	mu.Lock()
	defer mu.Unlock()

	nextID++
	id := nextID
	instances[id] = c

	tickerOnce.Do(startTicker)

	return Handle{id: id}
}

// Unregister removes a previously registered instance. Safe to call more
// than once for the same handle.
func Unregister(h Handle) {
	mu.Lock()
	defer mu.Unlock()
	delete(instances, h.id)
}

func startTicker() {
	tickerStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(TickInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				broadcastTick(now)
			case <-tickerStop:
				return
			}
		}
	}()
}

func broadcastTick(now time.Time) {
	mu.Lock()
	targets := make([]Committable, 0, len(instances))
	for _, c := range instances {
		targets = append(targets, c)
	}
	mu.Unlock()

	for _, c := range targets {
		c.Tick(now)
	}
}

// shutdownWorkers bounds how many Close calls Shutdown runs concurrently.
const shutdownWorkers = 4

// Shutdown closes every currently registered instance. It is the
// process-wide shutdown hook callers wire into their own process-exit
// path. Errors from individual closes are collected and returned
// joined; Shutdown always attempts every instance regardless of
// earlier failures.
func Shutdown() error {
	mu.Lock()
	targets := make([]Committable, 0, len(instances))
	for id, c := range instances {
		targets = append(targets, c)
		delete(instances, id)
	}
	mu.Unlock()

	if tickerStop != nil {
		close(tickerStop)
		tickerOnce = sync.Once{}
		tickerStop = nil
	}

	if len(targets) == 0 {
		return nil
	}

	errs := make(chan error, len(targets))
	sem := make(chan struct{}, shutdownWorkers)
	var wg sync.WaitGroup
	for _, c := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(c Committable) {
			defer wg.Done()
			defer func() { <-sem }()
			errs <- c.Close()
		}(c)
	}
	wg.Wait()
	close(errs)

	var all []error
	for err := range errs {
		if err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}

// Count returns the number of currently registered instances.
func Count() int {
	mu.Lock()
	defer mu.Unlock()
	return len(instances)
}
