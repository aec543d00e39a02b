package convert

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vertti/gxf2bed/internal/aggregate"
	"github.com/vertti/gxf2bed/internal/bed"
)

// renderer turns closed groups into BED text. It holds no mutable state
// and is shared by all render workers.
type renderer struct {
	synth     bed.Options
	formatter bed.Formatter
}

func newRenderer(o *Options) *renderer {
	return &renderer{
		synth: bed.Options{
			Type:             o.BedType,
			ScorePassthrough: o.ScorePassthrough,
			ThickFeature:     o.ThickFeature != "",
		},
		formatter: bed.Formatter{
			Type:        o.BedType,
			ExtraFields: o.ExtraFields,
			Feature:     o.ParentFeature,
		},
	}
}

func (r *renderer) render(dst []byte, groups []*aggregate.Group) ([]byte, error) {
	for _, g := range groups {
		rec, err := bed.Synthesize(g, &r.synth)
		if err != nil {
			return nil, err
		}
		if err := r.formatter.Resolve(rec, g.Attrs); err != nil {
			return nil, fmt.Errorf("%q: %w", g.Key, err)
		}
		dst = r.formatter.Append(dst, rec)
	}
	return dst, nil
}

// renderJob is a contiguous run of groups.
type renderJob struct {
	seqNum int
	groups []*aggregate.Group
}

// renderResult is the BED text for one job.
type renderResult struct {
	seqNum int
	data   []byte
}

// renderSequential renders every group before touching w, so a failing
// group leaves w untouched.
func renderSequential(ctx context.Context, groups []*aggregate.Group, w io.Writer, r *renderer, batch int) error {
	buf := make([]byte, 0, len(groups)*128)
	for start := 0; start < len(groups); start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batch, len(groups))

		var err error
		buf, err = r.render(buf, groups[start:end])
		if err != nil {
			return err
		}
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func renderParallel(ctx context.Context, groups []*aggregate.Group, w io.Writer, r *renderer, batch, workers int) error {
	jobs := make(chan renderJob, workers*2)
	results := make(chan renderResult, workers*2)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for seqNum, start := 0, 0; start < len(groups); seqNum, start = seqNum+1, start+batch {
			end := min(start+batch, len(groups))
			select {
			case jobs <- renderJob{seqNum: seqNum, groups: groups[start:end]}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return runRenderWorker(ctx, jobs, results, r)
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collector: order results; nothing is written until every batch rendered
	var batches [][]byte
	g.Go(func() error {
		batches = collectResults(results)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return writeBatches(w, batches)
}

func runRenderWorker(ctx context.Context, jobs <-chan renderJob, results chan<- renderResult, r *renderer) error {
	for job := range jobs {
		data, err := r.render(nil, job.groups)
		if err != nil {
			return err
		}

		select {
		case results <- renderResult{seqNum: job.seqNum, data: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func collectResults(results <-chan renderResult) [][]byte {
	pending := make(map[int][]byte)
	var ordered [][]byte

	for result := range results {
		pending[result.seqNum] = result.data

		// Move all sequential results available
		for {
			data, ok := pending[len(ordered)]
			if !ok {
				break
			}
			delete(pending, len(ordered))
			ordered = append(ordered, data)
		}
	}

	return ordered
}

func writeBatches(w io.Writer, batches [][]byte) error {
	for i, data := range batches {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing batch %d: %w", i, err)
		}
	}
	return nil
}
