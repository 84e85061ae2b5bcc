package request

import (
	"context"
	"time"

	"github.com/G-Research/popgen/internal/common/logctx"
	"github.com/G-Research/popgen/internal/common/logging"
	"github.com/G-Research/popgen/internal/common/popgenerrors"
	"github.com/G-Research/popgen/internal/popgen/artifact"
	"github.com/G-Research/popgen/internal/popgen/stream"
)

// collect pulls records from the producer until the population is reached or the request is stopped.
// Every record goes to the result buffer first, then the journal, then the stream.
func (r *Request) collect(ctx *logctx.Context, p *producer) {
	defer close(r.done)

	journal, err := r.deps.Store.CreateJournal(r.id, r.config.OutputKind, r.deps.FlushBatch)
	if err != nil {
		r.terminate(ctx, nil, stream.StatusFailed, err)
		return
	}

	for r.producedCount() < r.config.Population {
		if ctx.Err() != nil || !r.awaitRunning(ctx) {
			r.terminate(ctx, journal, stream.StatusStopped, nil)
			return
		}
		record, err := p.next(ctx)
		if err != nil {
			if popgenerrors.IsInterrupted(err) || ctx.Err() != nil {
				r.terminate(ctx, journal, stream.StatusStopped, nil)
			} else {
				r.terminate(ctx, journal, stream.StatusFailed, err)
			}
			return
		}
		if !r.accept(record) {
			r.terminate(ctx, journal, stream.StatusStopped, nil)
			return
		}
		r.deps.Metrics.RecordProduced()
		if err := journal.Append(record); err != nil {
			r.terminate(ctx, journal, stream.StatusFailed, err)
			return
		}
		r.deps.Hub.Publish(r.id, record)
	}
	r.complete(ctx, journal)
}

func (r *Request) producedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.produced
}

// accept buffers record unless the request has been stopped in the meantime.
func (r *Request) accept(record string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.IsTerminal() {
		return false
	}
	r.buffer.Append(record)
	r.produced++
	return true
}

// awaitRunning blocks while the request is paused. Returns false if the request was stopped.
func (r *Request) awaitRunning(ctx *logctx.Context) bool {
	for {
		switch r.State() {
		case Running:
			return true
		case Paused:
		default:
			return false
		}
		timer := time.NewTimer(r.deps.pausePollInterval())
		select {
		case <-r.wake:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}
		timer.Stop()
	}
}

// complete packages and publishes the artifact, then marks the request Finished. A stop that arrives
// while packaging wins: the fresh artifact is deleted again.
func (r *Request) complete(ctx *logctx.Context, journal *artifact.Journal) {
	if err := r.producer.shutdown(); err != nil {
		r.terminate(ctx, journal, stream.StatusFailed, err)
		return
	}
	if err := journal.Close(); err != nil {
		r.terminate(ctx, journal, stream.StatusFailed, err)
		return
	}
	published, err := r.deps.Store.Assemble(r.id, r.config.OutputKind, r.configJSON)
	if err != nil {
		r.terminate(ctx, journal, stream.StatusFailed, err)
		return
	}

	r.mu.Lock()
	if r.state.IsTerminal() {
		r.mu.Unlock()
		r.terminate(ctx, nil, stream.StatusStopped, nil)
		return
	}
	r.state = Finished
	r.terminatedAt = r.deps.now()
	r.mu.Unlock()

	if err := r.deps.Index.Add(detached(ctx), published); err != nil {
		logging.WithStacktrace(ctx.Log, err).Warn("Failed to index artifact; it will be aged by modification time")
	}
	r.deps.Metrics.RecordPublished(string(r.config.OutputKind))
	r.deps.Metrics.RecordOutcome(string(stream.StatusCompleted))
	r.deps.Hub.Finish(r.id, stream.StatusCompleted)
	r.cancel()
	ctx.Log.WithField("path", published.Path).Infof("Generation done, %d records collected", r.config.Population)
}

// terminate ends a collection that did not complete. Partial output is removed and the request is
// deregistered. cause is nil for a stop.
func (r *Request) terminate(ctx *logctx.Context, journal *artifact.Journal, status stream.Status, cause error) {
	if cause != nil {
		logging.WithStacktrace(ctx.Log, cause).Error("Collection failed, discarding partial output")
	}
	r.cancel()
	if err := r.producer.shutdown(); err != nil {
		ctx.Log.WithError(err).Warn("Failed to close generator")
	}

	r.mu.Lock()
	if !r.state.IsTerminal() {
		r.state = Stopped
	}
	if r.terminatedAt.IsZero() {
		r.terminatedAt = r.deps.now()
	}
	r.buffer.Clear()
	r.mu.Unlock()

	if journal != nil {
		if err := journal.Discard(); err != nil {
			ctx.Log.WithError(err).Warn("Failed to discard journal")
		}
	}
	if err := r.deps.Store.Discard(r.id, r.config.OutputKind); err != nil {
		ctx.Log.WithError(err).Warn("Failed to discard partial output")
	}
	if err := r.deps.Index.Remove(detached(ctx), r.id, r.config.OutputKind); err != nil {
		ctx.Log.WithError(err).Warn("Failed to remove artifact from index")
	}
	r.deps.Metrics.RecordOutcome(string(status))
	r.deps.Hub.Finish(r.id, status)
	r.deps.Registry.Remove(r.id)
	ctx.Log.Infof("Request terminated (%s) after %d records", status, r.producedCount())
}

// detached keeps the logger but not the cancellation of ctx, for bookkeeping that must outlive a stop.
func detached(ctx *logctx.Context) *logctx.Context {
	return logctx.New(context.Background(), ctx.Log)
}
