package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"property-scraper/models"
	"property-scraper/scraper"
	"property-scraper/utils"

	"github.com/ternarybob/arbor"
)

type Mode string

const (
	// ModeSerial runs adapters one after another with a cooldown between
	// them. Use it when proxy capacity is tight.
	ModeSerial   Mode = "serial"
	ModeParallel Mode = "parallel"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSerial, "":
		return ModeSerial, nil
	case ModeParallel:
		return ModeParallel, nil
	}
	return "", fmt.Errorf("unknown orchestrator mode %q", s)
}

// AdapterRecorder receives one call per adapter run.
type AdapterRecorder interface {
	AdapterRun(source models.Source, ok bool)
	ListingsScraped(source models.Source, n int)
}

type OrchestratorOptions struct {
	Cooldown time.Duration
	Fallback bool
	Cache    *ResultCache
	Monitor  *Monitor
	Recorder AdapterRecorder
	Now      func() time.Time
}

// Orchestrator fans a search out to every adapter and merges what comes back.
// A failing adapter never fails the run.
type Orchestrator struct {
	adapters []scraper.Adapter
	opts     OrchestratorOptions
	logger   arbor.ILogger
}

func NewOrchestrator(adapters []scraper.Adapter, logger arbor.ILogger, opts OrchestratorOptions) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{adapters: adapters, opts: opts, logger: logger}
}

func (o *Orchestrator) Sources() []models.Source {
	out := make([]models.Source, 0, len(o.adapters))
	for _, a := range o.adapters {
		out = append(out, a.Source())
	}
	return out
}

// Run returns the merged records of every adapter, or the curated sample
// set when they produced nothing and fallback is enabled.
func (o *Orchestrator) Run(ctx context.Context, criteria models.SearchCriteria, mode Mode) []models.Listing {
	key := criteria.Key() + "|" + string(mode)
	if o.opts.Cache != nil {
		if cached, ok := o.opts.Cache.Get(key); ok {
			o.logger.Info().Str("criteria", criteria.String()).Int("listings", len(cached)).Msg("Serving cached results")
			return cached
		}
	}

	start := time.Now()
	var merged []models.Listing
	if mode == ModeParallel {
		merged = o.runParallel(ctx, criteria)
	} else {
		merged = o.runSerial(ctx, criteria)
	}

	o.logger.Info().
		Str("mode", string(mode)).
		Int("adapters", len(o.adapters)).
		Int("listings", len(merged)).
		Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
		Msg("Orchestrator run finished")

	if len(merged) == 0 {
		if !o.opts.Fallback {
			return []models.Listing{}
		}
		o.logger.Warn().Msg("No listings from any source, serving curated sample")
		return SampleListings(o.opts.Now())
	}

	if o.opts.Cache != nil {
		o.opts.Cache.Put(key, merged)
	}
	return merged
}

func (o *Orchestrator) runSerial(ctx context.Context, criteria models.SearchCriteria) []models.Listing {
	var merged []models.Listing
	for i, adapter := range o.adapters {
		if i > 0 && o.opts.Cooldown > 0 {
			if err := utils.Sleep(ctx, o.opts.Cooldown); err != nil {
				o.logger.Warn().Err(err).Msg("Run cancelled during cooldown")
				break
			}
		}
		merged = append(merged, o.runAdapter(ctx, adapter, criteria)...)
	}
	return merged
}

func (o *Orchestrator) runParallel(ctx context.Context, criteria models.SearchCriteria) []models.Listing {
	results := make([][]models.Listing, len(o.adapters))

	var wg sync.WaitGroup
	for i, adapter := range o.adapters {
		wg.Add(1)
		go func(i int, adapter scraper.Adapter) {
			defer wg.Done()
			results[i] = o.runAdapter(ctx, adapter, criteria)
		}(i, adapter)
	}
	wg.Wait()

	var merged []models.Listing
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged
}

// runAdapter converts errors and panics into an AdapterFailure that is
// logged and recorded, returning no records.
func (o *Orchestrator) runAdapter(ctx context.Context, adapter scraper.Adapter, criteria models.SearchCriteria) []models.Listing {
	source := adapter.Source()
	listings, err := safeExtract(ctx, adapter, criteria)
	if err != nil {
		failure := &models.AdapterFailure{Source: source, Err: err}
		o.logger.Error().Str("source", string(source)).Err(failure).Msg("Adapter failed")
		if o.opts.Monitor != nil {
			o.opts.Monitor.RecordFailure(source, failure)
		}
		if o.opts.Recorder != nil {
			o.opts.Recorder.AdapterRun(source, false)
		}
		return nil
	}

	o.logger.Info().Str("source", string(source)).Int("listings", len(listings)).Msg("Adapter finished")
	if o.opts.Monitor != nil {
		o.opts.Monitor.RecordSuccess(source, len(listings))
	}
	if o.opts.Recorder != nil {
		o.opts.Recorder.AdapterRun(source, true)
		o.opts.Recorder.ListingsScraped(source, len(listings))
	}
	return listings
}

func safeExtract(ctx context.Context, adapter scraper.Adapter, criteria models.SearchCriteria) (listings []models.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return adapter.Extract(ctx, criteria)
}
