// Package testfixtures provides a scriptable generator for tests of the request lifecycle.
package testfixtures

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/G-Research/popgen/internal/common/popgenerrors"
	"github.com/G-Research/popgen/internal/popgen/artifact"
	"github.com/G-Research/popgen/internal/popgen/request"
)

// TableFileName is written by FakeProducer.Close for csv requests.
const TableFileName = "patients.csv"

// FakeGenerator hands out FakeProducers. Set its fields before use.
type FakeGenerator struct {
	// Gated producers only generate a record per token passed to Release.
	Gated bool
	// FailAt makes the FailAt-th call to Next return FailErr.
	FailAt  int
	FailErr error
	// ConfigureErr is returned by Configure when set.
	ConfigureErr error
	// CloseGate, when set, holds Close until it is closed.
	CloseGate chan struct{}

	mu        sync.Mutex
	producers []*FakeProducer
}

func (g *FakeGenerator) Configure(_ context.Context, config request.Configuration, workspace request.Workspace) (request.Producer, error) {
	if g.ConfigureErr != nil {
		return nil, g.ConfigureErr
	}
	p := &FakeProducer{
		seed:      config.Seed,
		failAt:    g.FailAt,
		failErr:   g.FailErr,
		closeGate: g.CloseGate,
	}
	if g.Gated {
		p.gate = make(chan struct{}, 1<<16)
	}
	if config.OutputKind == artifact.KindCSV {
		p.tableDir = workspace.TableDir
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.producers = append(g.producers, p)
	return p, nil
}

// Producers returns every producer handed out so far.
func (g *FakeGenerator) Producers() []*FakeProducer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*FakeProducer(nil), g.producers...)
}

// Last returns the most recently configured producer.
func (g *FakeGenerator) Last() *FakeProducer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.producers) == 0 {
		return nil
	}
	return g.producers[len(g.producers)-1]
}

// FakeProducer returns records of the form {"n":<call>,"seed":<seed>}.
type FakeProducer struct {
	seed      int64
	gate      chan struct{}
	failAt    int
	failErr   error
	tableDir  string
	closeGate chan struct{}

	calls  int32
	closed int32
}

func (p *FakeProducer) Next(ctx context.Context) (string, error) {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return "", popgenerrors.ErrInterrupted
		}
	} else if ctx.Err() != nil {
		return "", popgenerrors.ErrInterrupted
	}
	n := atomic.AddInt32(&p.calls, 1)
	if p.failAt > 0 && int(n) == p.failAt {
		return "", p.failErr
	}
	return fmt.Sprintf(`{"n":%d,"seed":%d}`, n, p.seed), nil
}

// Release lets n more calls to Next through a gated producer.
func (p *FakeProducer) Release(n int) {
	for i := 0; i < n; i++ {
		p.gate <- struct{}{}
	}
}

// Calls is the number of records generated or attempted, excluding interrupted calls.
func (p *FakeProducer) Calls() int {
	return int(atomic.LoadInt32(&p.calls))
}

func (p *FakeProducer) Close() error {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}
	if p.closeGate != nil {
		<-p.closeGate
	}
	if p.tableDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.tableDir, 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf("rows\n%d\n", p.Calls())
	return os.WriteFile(filepath.Join(p.tableDir, TableFileName), []byte(content), 0o644)
}

// Closed reports whether Close has been called, even if it is still held by CloseGate.
func (p *FakeProducer) Closed() bool {
	return atomic.LoadInt32(&p.closed) == 1
}
