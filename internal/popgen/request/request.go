package request

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/popgen/internal/common/logctx"
	"github.com/G-Research/popgen/internal/common/popgenerrors"
	"github.com/G-Research/popgen/internal/common/util"
	"github.com/G-Research/popgen/internal/popgen/artifact"
	"github.com/G-Research/popgen/internal/popgen/metrics"
	"github.com/G-Research/popgen/internal/popgen/stream"
)

// DefaultPausePollInterval bounds how long a paused collector sleeps before re-checking its state.
const DefaultPausePollInterval = time.Second

// Deregisterer removes a request from whatever is tracking it.
type Deregisterer interface {
	Remove(id string)
}

// Dependencies are the services shared by every request.
type Dependencies struct {
	Store    *artifact.Store
	Index    artifact.Index
	Hub      *stream.Hub
	Registry Deregisterer
	Metrics  *metrics.Metrics
	Clock    util.Clock

	BufferCapacity    int
	FlushBatch        int
	PausePollInterval time.Duration
}

func (d *Dependencies) pausePollInterval() time.Duration {
	if d.PausePollInterval <= 0 {
		return DefaultPausePollInterval
	}
	return d.PausePollInterval
}

func (d *Dependencies) now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock.Now()
}

// Status is a point-in-time view of a request.
type Status struct {
	Id           string        `json:"uuid"`
	State        State         `json:"state"`
	Produced     int           `json:"produced"`
	Population   int           `json:"population"`
	Buffered     int           `json:"buffered"`
	OutputKind   artifact.Kind `json:"outputKind"`
	CreatedAt    time.Time     `json:"createdAt"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	TerminatedAt *time.Time    `json:"terminatedAt,omitempty"`
}

// Request is one generation job. It owns a result buffer and, once started, exactly one producer and one
// collector goroutine.
type Request struct {
	id         string
	config     Configuration
	configJSON []byte
	source     Producer
	buffer     *ResultBuffer
	deps       *Dependencies

	ctx    *logctx.Context
	cancel func()
	// wake is signalled on resume so a paused collector does not wait for the poll interval.
	wake chan struct{}
	// done is closed once the request will run no more code: after the collector exits, or on Abandon.
	done chan struct{}

	mu           sync.Mutex
	state        State
	produced     int
	producer     *producer
	createdAt    time.Time
	startedAt    time.Time
	terminatedAt time.Time
}

// New creates a request in state Created. source is the already configured generator for config.
// Collection runs under a context derived from parent, so cancelling parent stops the request.
func New(parent *logctx.Context, id string, config Configuration, source Producer, deps *Dependencies) (*Request, error) {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	ctx, cancel := logctx.WithCancel(logctx.WithLogField(parent, "requestId", id))
	return &Request{
		id:         id,
		config:     config,
		configJSON: configJSON,
		source:     source,
		buffer:     NewResultBuffer(deps.BufferCapacity),
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		state:      Created,
		createdAt:  deps.now(),
	}, nil
}

func (r *Request) Id() string {
	return r.id
}

func (r *Request) Config() Configuration {
	return r.config
}

// ConfigJSON is the configuration exactly as it is packaged into the artifact.
func (r *Request) ConfigJSON() []byte {
	return r.configJSON
}

func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Request) CreatedAt() time.Time {
	return r.createdAt
}

// TerminatedAt is when the request became Stopped or Finished; zero otherwise.
func (r *Request) TerminatedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminatedAt
}

// Done is closed when the request has released all its goroutines.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

func (r *Request) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := Status{
		Id:         r.id,
		State:      r.state,
		Produced:   r.produced,
		Population: r.config.Population,
		Buffered:   r.buffer.Len(),
		OutputKind: r.config.OutputKind,
		CreatedAt:  r.createdAt,
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		status.StartedAt = &t
	}
	if !r.terminatedAt.IsZero() {
		t := r.terminatedAt
		status.TerminatedAt = &t
	}
	return status
}

// Start moves a Created request to Running and spawns its producer and collector.
func (r *Request) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Created {
		return r.alreadyIn()
	}
	r.state = Running
	r.startedAt = r.deps.now()
	r.producer = newProducer(r.source)
	go r.producer.run(r.ctx)
	go r.collect(r.ctx, r.producer)
	r.ctx.Log.Info("Request started")
	return nil
}

// Pause makes the collector halt once the record in flight has been collected.
func (r *Request) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Created:
		return &popgenerrors.ErrNotStarted{RequestId: r.id}
	case Running:
		r.state = Paused
		r.ctx.Log.Info("Request paused")
		return nil
	default:
		return r.alreadyIn()
	}
}

func (r *Request) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Created:
		return &popgenerrors.ErrNotStarted{RequestId: r.id}
	case Paused:
		r.state = Running
		select {
		case r.wake <- struct{}{}:
		default:
		}
		r.ctx.Log.Info("Request resumed")
		return nil
	default:
		return r.alreadyIn()
	}
}

// Stop cancels a running or paused request. Buffered records are dropped immediately; the collector
// removes files and deregisters the request asynchronously.
func (r *Request) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Created:
		return &popgenerrors.ErrNotStarted{RequestId: r.id}
	case Running, Paused:
		r.state = Stopped
		r.terminatedAt = r.deps.now()
		r.buffer.Clear()
		r.cancel()
		r.ctx.Log.Info("Request stop requested")
		return nil
	default:
		return r.alreadyIn()
	}
}

// Drain returns and removes all buffered records, along with the state they were drained in.
func (r *Request) Drain() ([]string, State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer.DrainAll(), r.state
}

// Abandon discards a request that was never started, marking it Stopped. Returns false if the request
// has already left Created.
func (r *Request) Abandon() bool {
	r.mu.Lock()
	if r.state != Created {
		r.mu.Unlock()
		return false
	}
	r.state = Stopped
	r.terminatedAt = r.deps.now()
	r.mu.Unlock()

	r.cancel()
	if c, ok := r.source.(io.Closer); ok {
		util.CloseResource(r.ctx.Log, "generator", c)
	}
	if err := r.deps.Store.RemoveTables(r.id); err != nil {
		r.ctx.Log.WithError(err).Warn("Failed to remove tabular workspace")
	}
	r.deps.Metrics.RecordOutcome(string(stream.StatusStopped))
	r.deps.Hub.Finish(r.id, stream.StatusStopped)
	close(r.done)
	r.ctx.Log.Info("Request abandoned")
	return true
}

// alreadyIn must be called with mu held.
func (r *Request) alreadyIn() error {
	return &popgenerrors.ErrAlreadyInState{RequestId: r.id, State: r.state.String()}
}
