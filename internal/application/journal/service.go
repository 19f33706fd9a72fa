package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/state-hub/state-hub/internal/domain/journal"
)

const (
	defaultBufferSize    = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = time.Second
	writeTimeout         = 5 * time.Second
)

// Service persists journal records asynchronously. Record never blocks: lanes
// call it on the event hot path, so a saturated buffer drops the record and
// counts it instead of applying backpressure.
type Service struct {
	repo   journal.Repository
	logger zerolog.Logger

	buf     chan *journal.Record
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64

	batchSize     int
	flushInterval time.Duration
}

// NewService creates a journal service and starts its writer goroutine.
func NewService(repo journal.Repository, logger zerolog.Logger) *Service {
	s := &Service{
		repo:          repo,
		logger:        logger.With().Str("service", "journal").Logger(),
		buf:           make(chan *journal.Record, defaultBufferSize),
		done:          make(chan struct{}),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Record queues one record for persistence. Safe for concurrent use.
func (s *Service) Record(rec *journal.Record) {
	select {
	case s.buf <- rec:
	default:
		if s.dropped.Add(1)%100 == 1 {
			s.logger.Warn().Uint64("dropped", s.dropped.Load()).Msg("journal buffer full; records dropped")
		}
	}
}

// Dropped reports how many records were lost to a full buffer.
func (s *Service) Dropped() uint64 {
	return s.dropped.Load()
}

// Close flushes buffered records and stops the writer.
func (s *Service) Close() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Service) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]*journal.Record, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := s.repo.InsertBatch(ctx, batch); err != nil {
			s.logger.Error().Err(err).Int("count", len(batch)).Msg("failed to persist journal batch")
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-s.buf:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			for {
				select {
				case rec := <-s.buf:
					batch = append(batch, rec)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
