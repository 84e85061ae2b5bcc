package request

import (
	"context"
	"io"
	"sync"

	"github.com/G-Research/popgen/internal/common/popgenerrors"
)

type produced struct {
	record string
	err    error
}

// producer is the goroutine that calls the generator on behalf of the collector. It generates one
// record per demand, so nothing is generated while the collector is paused.
type producer struct {
	source   Producer
	demand   chan struct{}
	results  chan produced
	quit     chan struct{}
	quitOnce sync.Once
	exited   chan struct{}
	closeErr error
}

func newProducer(source Producer) *producer {
	return &producer{
		source:  source,
		demand:  make(chan struct{}),
		results: make(chan produced),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

func (p *producer) run(ctx context.Context) {
	defer close(p.exited)
	defer func() {
		if c, ok := p.source.(io.Closer); ok {
			p.closeErr = c.Close()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case <-p.demand:
		}
		record, err := p.source.Next(ctx)
		select {
		case p.results <- produced{record: record, err: err}:
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		}
	}
}

// next asks for exactly one record and waits for it.
func (p *producer) next(ctx context.Context) (string, error) {
	select {
	case p.demand <- struct{}{}:
	case <-ctx.Done():
		return "", popgenerrors.ErrInterrupted
	case <-p.exited:
		return "", popgenerrors.ErrInterrupted
	}
	select {
	case r := <-p.results:
		return r.record, r.err
	case <-ctx.Done():
		return "", popgenerrors.ErrInterrupted
	case <-p.exited:
		return "", popgenerrors.ErrInterrupted
	}
}

// shutdown stops the goroutine, waits for it to exit and returns the error from closing the source.
// Safe to call more than once.
func (p *producer) shutdown() error {
	p.quitOnce.Do(func() { close(p.quit) })
	<-p.exited
	return p.closeErr
}
