package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"promptpix/internal/domain"
	"promptpix/internal/history"
)

// Service is the subset of the generative backend the batch orchestrator
// needs.
type Service interface {
	GeneratePrompt(ctx context.Context, imageBase64, mimeType, style string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Input is one uploaded file, already converted by the file boundary.
type Input struct {
	Filename string
	MimeType string
	Base64   string
	DataURL  string
}

// Options configures an Orchestrator.
type Options struct {
	Service  Service
	History  *history.Store
	Logger   *zerolog.Logger
	Rand     *rand.Rand
	OnChange func()
}

// Orchestrator fans prompt generation out across the files of one batch.
// Every item races independently; a join barrier commits the write-once
// history snapshot after the last item settles. A run tag invalidates
// completions belonging to a superseded batch.
type Orchestrator struct {
	mu sync.Mutex

	svc      Service
	hist     *history.Store
	logger   zerolog.Logger
	rng      *rand.Rand
	onChange func()

	run     uint64
	results []domain.BatchResult
}

// NewOrchestrator wires a batch orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Service == nil {
		return nil, errors.New("batch: service is required")
	}
	if opts.History == nil {
		return nil, errors.New("batch: history store is required")
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "batch").Logger()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	onChange := opts.OnChange
	if onChange == nil {
		onChange = func() {}
	}
	return &Orchestrator{
		svc:      opts.Service,
		hist:     opts.History,
		logger:   logger,
		rng:      rng,
		onChange: onChange,
	}, nil
}

// Results returns a copy of the current per-item state.
func (o *Orchestrator) Results() []domain.BatchResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.BatchResult, len(o.results))
	copy(out, o.results)
	return out
}

// Reset discards the current batch; in-flight completions from it are
// dropped when they arrive.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.run++
	o.results = nil
	o.mu.Unlock()
	o.onChange()
}

// Start begins a new batch. Placeholders for every file are visible
// immediately, before any network activity settles; each file is then
// analyzed concurrently with an independently chosen random style.
func (o *Orchestrator) Start(ctx context.Context, files []Input) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: no files in batch", domain.ErrInvalidInput)
	}

	catalog := domain.StyleCatalog()

	o.mu.Lock()
	o.run++
	run := o.run
	o.results = make([]domain.BatchResult, len(files))
	styles := make([]string, len(files))
	for i, f := range files {
		o.results[i] = domain.BatchResult{
			ID:          uuid.NewString(),
			Filename:    f.Filename,
			DataURL:     f.DataURL,
			IsAnalyzing: true,
		}
		styles[i] = domain.ResolveStyle(domain.StyleNone, catalog, o.rng)
	}
	ids := make([]string, len(files))
	for i := range o.results {
		ids[i] = o.results[i].ID
	}
	o.mu.Unlock()
	o.onChange()

	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(id, style string, f Input) {
			defer wg.Done()
			prompt, err := o.svc.GeneratePrompt(ctx, f.Base64, f.MimeType, style)
			o.applyAnalysis(run, id, prompt, err)
		}(ids[i], styles[i], f)
	}

	// Join barrier: the snapshot is committed exactly once, after the last
	// item settles, with errored items retained as empty prompts.
	go func() {
		wg.Wait()
		o.commitSnapshot(ctx, run)
	}()

	o.logger.Info().Int("files", len(files)).Msg("batch started")
	return nil
}

// applyAnalysis records one item's settled analysis. Exactly one of prompt
// or analysis error ends up populated. Completions from a superseded run are
// discarded.
func (o *Orchestrator) applyAnalysis(run uint64, id, prompt string, err error) {
	o.mu.Lock()
	if o.run != run {
		o.mu.Unlock()
		return
	}
	for i := range o.results {
		if o.results[i].ID != id {
			continue
		}
		o.results[i].IsAnalyzing = false
		if err != nil {
			o.results[i].AnalysisError = "Failed to generate prompt: " + err.Error()
			o.results[i].Prompt = ""
		} else {
			o.results[i].Prompt = prompt
			o.results[i].AnalysisError = ""
		}
		break
	}
	o.mu.Unlock()
	o.onChange()
}

func (o *Orchestrator) commitSnapshot(ctx context.Context, run uint64) {
	o.mu.Lock()
	if o.run != run {
		o.mu.Unlock()
		return
	}
	snapshot := domain.BatchHistoryItem{
		ID:        "batch-" + uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Results:   make([]domain.BatchSnapshotResult, len(o.results)),
	}
	for i, r := range o.results {
		snapshot.Results[i] = domain.BatchSnapshotResult{
			ID:                r.ID,
			DataURL:           r.DataURL,
			Prompt:            r.Prompt,
			GeneratedImageURL: r.GeneratedImageURL,
		}
	}
	if err := o.hist.AppendBatch(ctx, snapshot); err != nil {
		o.logger.Error().Err(err).Msg("batch snapshot commit failed")
	}
	o.mu.Unlock()
	o.onChange()
	o.logger.Info().Str("id", snapshot.ID).Int("items", len(snapshot.Results)).Msg("batch snapshot committed")
}

// GenerateImage renders an image for one settled item. Items without a
// prompt are silently skipped; unknown ids are reported. The committed
// snapshot is never updated retroactively.
func (o *Orchestrator) GenerateImage(ctx context.Context, id string) error {
	o.mu.Lock()
	run := o.run
	var prompt string
	found := false
	for i := range o.results {
		if o.results[i].ID != id {
			continue
		}
		found = true
		prompt = o.results[i].Prompt
		if prompt == "" {
			o.mu.Unlock()
			return nil
		}
		o.results[i].IsGeneratingImage = true
		o.results[i].ImageError = ""
		break
	}
	o.mu.Unlock()
	if !found {
		return domain.ErrNotFound
	}
	o.onChange()

	go func() {
		imageURL, err := o.svc.GenerateImage(ctx, prompt)
		o.mu.Lock()
		if o.run != run {
			o.mu.Unlock()
			return
		}
		for i := range o.results {
			if o.results[i].ID != id {
				continue
			}
			o.results[i].IsGeneratingImage = false
			if err != nil {
				o.results[i].ImageError = "Failed to generate image: " + err.Error()
			} else {
				o.results[i].GeneratedImageURL = imageURL
				o.results[i].ImageError = ""
			}
			break
		}
		o.mu.Unlock()
		o.onChange()
	}()
	return nil
}

// Restore rehydrates a stored batch snapshot into live state. Busy and error
// flags never survive persistence.
func (o *Orchestrator) Restore(item domain.BatchHistoryItem) {
	o.mu.Lock()
	o.run++
	o.results = make([]domain.BatchResult, len(item.Results))
	for i, r := range item.Results {
		o.results[i] = domain.BatchResult{
			ID:                r.ID,
			DataURL:           r.DataURL,
			Prompt:            r.Prompt,
			GeneratedImageURL: r.GeneratedImageURL,
		}
	}
	o.mu.Unlock()
	o.onChange()
}
