package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertti/gxf2bed/internal/aggregate"
	"github.com/vertti/gxf2bed/internal/parser"
)

func aggregateSequential(ctx context.Context, p *parser.Reader, rules *aggregate.Rules, chunkSize int, m *aggregate.Merger, stats *RunStats) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := p.NextChunk(chunkSize)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		partial, err := aggregate.AggregateChunk(chunk, rules)
		if err != nil {
			return err
		}
		if err := m.Merge(partial); err != nil {
			return err
		}
		stats.Chunks++
		stats.Records += partial.Records
	}
}

func aggregateParallel(ctx context.Context, p *parser.Reader, rules *aggregate.Rules, o *Options, m *aggregate.Merger, stats *RunStats, log *zap.Logger) error {
	jobs := make(chan *parser.Chunk, o.Workers*2)
	partials := make(chan *aggregate.Partial, o.Workers*2)

	g, ctx := errgroup.WithContext(ctx)

	// Producer: the only reader of p.
	g.Go(func() error {
		defer close(jobs)
		return produceChunks(ctx, p, jobs, o.ChunkSize)
	})

	var workers sync.WaitGroup
	for range o.Workers {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			return runAggregateWorker(ctx, jobs, partials, rules)
		})
	}
	go func() {
		workers.Wait()
		close(partials)
	}()

	// Collector: merge partials in chunk order
	g.Go(func() error {
		return mergeInOrder(partials, m, stats, log)
	})

	return g.Wait()
}

func produceChunks(ctx context.Context, p *parser.Reader, jobs chan<- *parser.Chunk, chunkSize int) error {
	for {
		chunk, err := p.NextChunk(chunkSize)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		select {
		case jobs <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func runAggregateWorker(ctx context.Context, jobs <-chan *parser.Chunk, partials chan<- *aggregate.Partial, rules *aggregate.Rules) error {
	for chunk := range jobs {
		partial, err := aggregate.AggregateChunk(chunk, rules)
		if err != nil {
			return err
		}

		select {
		case partials <- partial:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func mergeInOrder(partials <-chan *aggregate.Partial, m *aggregate.Merger, stats *RunStats, log *zap.Logger) error {
	pending := make(map[int]*aggregate.Partial)
	nextSeq := 0

	for partial := range partials {
		pending[partial.Seq] = partial

		// Merge all sequential partials available
		for {
			next, ok := pending[nextSeq]
			if !ok {
				break
			}
			if err := m.Merge(next); err != nil {
				return err
			}
			delete(pending, nextSeq)
			stats.Records += next.Records
			nextSeq++
		}
		log.Debug("received chunk", zap.Int("chunk", partial.Seq), zap.Int("pending", len(pending)))
	}

	stats.Chunks = nextSeq
	return nil
}
