package scanner

import (
	"context"
	"sync"
	"time"
)

// WorkerConfig holds options for the worker pool.
type WorkerConfig struct {
	Threads   int
	Throttler *Throttler // nil = no delay
	Pauser    *Pauser    // nil = no pause support
	Probe     ProbeConfig
}

// RunWorkerPool fans items out across workers and returns a channel of
// results. The channel is closed once every item has been probed or ctx is
// done; items not yet started when ctx ends produce no result.
func RunWorkerPool(
	ctx context.Context,
	req *Requester,
	items []WorkItem,
	cfg WorkerConfig,
) <-chan ScanResult {
	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}
	itemsCh := make(chan WorkItem, threads*2)
	resultsCh := make(chan ScanResult, threads*2)

	var wg sync.WaitGroup

	go func() {
		defer close(itemsCh)
		for _, item := range items {
			select {
			case itemsCh <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemsCh {
				if err := cfg.Pauser.Wait(ctx); err != nil {
					return
				}

				if delay := cfg.Throttler.Delay(); delay > 0 {
					select {
					case <-time.After(delay):
					case <-ctx.Done():
						return
					}
				}

				result := Probe(ctx, req, item, cfg.Probe)
				if result.Error != nil {
					if ctx.Err() != nil {
						return
					}
					cfg.Throttler.RecordError()
				} else {
					cfg.Throttler.RecordStatus(result.StatusCode)
				}

				select {
				case resultsCh <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	return resultsCh
}
