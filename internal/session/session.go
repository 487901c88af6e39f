// Package session keeps a running summary of the conversation and stores it
// as searchable memory.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"ragmem/internal/domain"
)

// DefaultCollection is the reserved collection holding session summaries.
const DefaultCollection = "current_session"

// Description is registered for the session collection.
const Description = "Current learning session conversation history"

// State holds the latest session summary. It starts empty and lives only in
// process memory.
type State struct {
	mu      sync.RWMutex
	summary string
}

func (s *State) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

func (s *State) Set(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
}

// Ingester appends text to a collection in the store at storagePath.
type Ingester interface {
	IngestText(ctx context.Context, collection, description, text, storagePath string) error
}

// TurnSummarizer folds one exchange into an existing summary. Recorders use
// it instead of Summarize when the summarizer provides it.
type TurnSummarizer interface {
	SummarizeTurn(previous, turn string, maxSentences int) (string, error)
}

// Options configures a Recorder. Zero values select defaults. StoragePath
// selects the store summaries are written to; empty means the ingester's
// default.
type Options struct {
	Collection   string
	MaxSentences int
	Workers      int
	StoragePath  string
	Logger       logrus.FieldLogger
}

// Recorder updates the session summary after each turn on a worker pool.
// Recording never blocks the caller and never reports errors to it.
type Recorder struct {
	state        *State
	summarizer   domain.Summarizer
	ingester     Ingester
	collection   string
	storagePath  string
	maxSentences int
	log          logrus.FieldLogger

	pool   *ants.Pool
	wg     sync.WaitGroup
	update sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRecorder(state *State, summarizer domain.Summarizer, ingester Ingester, opts Options) (*Recorder, error) {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.MaxSentences <= 0 {
		opts.MaxSentences = 5
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	log := opts.Logger.WithField("collection", opts.Collection)
	pool, err := ants.NewPool(opts.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			log.WithField("panic", p).Error("session task panicked")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("session worker pool: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		state:        state,
		summarizer:   summarizer,
		ingester:     ingester,
		collection:   opts.Collection,
		storagePath:  opts.StoragePath,
		maxSentences: opts.MaxSentences,
		log:          log,
		pool:         pool,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// FormatTurn renders one exchange the way it is fed to the summarizer.
func FormatTurn(user, reply string) string {
	return fmt.Sprintf("User: %s\nAI: %s", strings.TrimSpace(user), strings.TrimSpace(reply))
}

// RecordTurn schedules a summary update for the exchange and returns at once.
func (r *Recorder) RecordTurn(user, reply string) {
	turn := FormatTurn(user, reply)
	r.wg.Add(1)
	task := func() {
		defer r.wg.Done()
		r.record(turn)
	}
	if err := r.pool.Submit(task); err != nil {
		// overloaded or released pool; the summary must still be written
		r.log.WithError(err).Debug("session pool rejected task, running detached")
		go task()
	}
}

func (r *Recorder) record(turn string) {
	r.update.Lock()
	summary, err := r.summarize(r.state.Get(), turn)
	if err != nil {
		r.update.Unlock()
		r.log.WithError(err).Error("session summarize failed")
		return
	}
	r.state.Set(summary)
	r.update.Unlock()

	if strings.TrimSpace(summary) == "" {
		return
	}
	if err := r.ingester.IngestText(r.ctx, r.collection, Description, summary, r.storagePath); err != nil {
		r.log.WithError(err).Error("session summary ingest failed")
		return
	}
	r.log.WithField("summary_len", len(summary)).Debug("session summary stored")
}

func (r *Recorder) summarize(prev, turn string) (string, error) {
	if ts, ok := r.summarizer.(TurnSummarizer); ok {
		return ts.SummarizeTurn(prev, turn, r.maxSentences)
	}
	return r.summarizer.Summarize(strings.TrimSpace(prev+"\n"+turn), r.maxSentences)
}

// Wait blocks until every recorded turn has been processed.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Close waits for pending turns until ctx is done, then cancels whatever is
// still running and releases the pool.
func (r *Recorder) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	r.cancel()
	r.pool.Release()
	return err
}
