package manager

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/popgen/internal/common/logctx"
	"github.com/G-Research/popgen/internal/common/popgenerrors"
	"github.com/G-Research/popgen/internal/common/requestid"
	"github.com/G-Research/popgen/internal/common/util"
	"github.com/G-Research/popgen/internal/popgen/artifact"
	"github.com/G-Research/popgen/internal/popgen/metrics"
	"github.com/G-Research/popgen/internal/popgen/registry"
	"github.com/G-Research/popgen/internal/popgen/request"
	"github.com/G-Research/popgen/internal/popgen/stream"
)

type Options struct {
	BufferCapacity    int
	FlushBatch        int
	PausePollInterval time.Duration
	// DeleteOnRetrieval removes an artifact once it has been fetched successfully.
	DeleteOnRetrieval bool
	// FinishedRetention is how long a Finished request stays registered if nobody drains it.
	FinishedRetention time.Duration
	// IdleTimeout is how long a request may stay Created before it is abandoned.
	IdleTimeout time.Duration
	Policy      request.Policy
}

// Manager is the entry point for every caller operation on requests. Transports translate their
// protocol into calls on a Manager.
type Manager struct {
	ctx       *logctx.Context
	cancel    context.CancelFunc
	registry  *registry.Registry
	generator request.Generator
	store     *artifact.Store
	index     artifact.Index
	hub       *stream.Hub
	metrics   *metrics.Metrics
	options   Options
	deps      *request.Dependencies
}

// New creates a Manager. Collections run under a context derived from ctx; Shutdown cancels it.
func New(
	ctx *logctx.Context,
	reg *registry.Registry,
	generator request.Generator,
	store *artifact.Store,
	index artifact.Index,
	hub *stream.Hub,
	m *metrics.Metrics,
	clock util.Clock,
	options Options,
) *Manager {
	if clock == nil {
		clock = &util.DefaultClock{}
	}
	managerCtx, cancel := logctx.WithCancel(ctx)
	reg.OnChange(m.SetRegistered)
	return &Manager{
		ctx:       managerCtx,
		cancel:    cancel,
		registry:  reg,
		generator: generator,
		store:     store,
		index:     index,
		hub:       hub,
		metrics:   m,
		options:   options,
		deps: &request.Dependencies{
			Store:             store,
			Index:             index,
			Hub:               hub,
			Registry:          reg,
			Metrics:           m,
			Clock:             clock,
			BufferCapacity:    options.BufferCapacity,
			FlushBatch:        options.FlushBatch,
			PausePollInterval: options.PausePollInterval,
		},
	}
}

// Policy is the rule set configurations must satisfy.
func (m *Manager) Policy() request.Policy {
	return m.options.Policy
}

// Create validates config, configures the generator and registers a new request in state Created.
func (m *Manager) Create(ctx context.Context, config request.Configuration) (string, error) {
	if err := config.Validate(m.options.Policy); err != nil {
		return "", err
	}
	id := requestid.New()
	tables, err := m.store.TableDir(id)
	if err != nil {
		return "", err
	}
	source, err := m.generator.Configure(ctx, config, request.Workspace{TableDir: tables})
	if err != nil {
		return "", errors.WithMessage(err, "configuring generator")
	}
	req, err := request.New(m.ctx, id, config, source, m.deps)
	if err != nil {
		return "", err
	}
	m.registry.Add(req)
	m.metrics.RecordCreated()
	logctx.FromContext(ctx).Log.WithField("requestId", id).Infof("Request created for %d records", config.Population)
	return id, nil
}

func (m *Manager) Start(id string) error {
	return m.transition(id, request.Running.String(), (*request.Request).Start)
}

func (m *Manager) Pause(id string) error {
	return m.transition(id, request.Paused.String(), (*request.Request).Pause)
}

func (m *Manager) Resume(id string) error {
	return m.transition(id, request.Running.String(), (*request.Request).Resume)
}

func (m *Manager) Stop(id string) error {
	return m.transition(id, request.Stopped.String(), (*request.Request).Stop)
}

func (m *Manager) transition(id string, target string, f func(*request.Request) error) error {
	req, err := m.lookup(id, true)
	if err == nil {
		err = f(req)
	}
	m.metrics.RecordTransition(target, err)
	return err
}

// lookup finds a registered request. With tombstones set, a recently deregistered request is reported
// as ErrAlreadyInState rather than ErrNotFound.
// Ids are matched case-insensitively.
func (m *Manager) lookup(id string, tombstones bool) (*request.Request, error) {
	id, err := requestid.Canonical(id)
	if err != nil {
		return nil, err
	}
	if req, ok := m.registry.Get(id); ok {
		return req, nil
	}
	if tombstones {
		if state, ok := m.registry.Tombstone(id); ok {
			return nil, &popgenerrors.ErrAlreadyInState{RequestId: id, State: state.String()}
		}
	}
	return nil, &popgenerrors.ErrNotFound{Type: "request", Value: id}
}

// PollResults returns the records buffered since the last poll. Polling a Finished request deregisters
// it, since nothing more will be buffered.
func (m *Manager) PollResults(id string) ([]string, error) {
	req, err := m.lookup(id, false)
	if err != nil {
		return nil, err
	}
	records, state := req.Drain()
	if state == request.Finished {
		m.registry.Remove(req.Id())
	}
	return records, nil
}

// FetchArtifact returns the packaged output of a finished request, along with the kind kindName resolved to.
func (m *Manager) FetchArtifact(ctx context.Context, id string, kindName string) ([]byte, artifact.Kind, error) {
	id, err := requestid.Canonical(id)
	if err != nil {
		return nil, "", err
	}
	kind, err := artifact.ParseKind(kindName)
	if err != nil {
		return nil, "", err
	}
	if req, ok := m.registry.Get(id); ok {
		switch req.State() {
		case request.Finished:
		case request.Stopped:
			return nil, "", &popgenerrors.ErrNotFound{Type: "artifact", Value: id, Message: "request was stopped"}
		default:
			return nil, "", &popgenerrors.ErrPending{RequestId: id}
		}
	}
	data, err := m.store.Read(id, kind)
	if err != nil {
		return nil, "", err
	}
	if m.options.DeleteOnRetrieval {
		if err := m.store.Delete(id, kind); err != nil {
			logctx.FromContext(ctx).Log.WithError(err).Warn("Failed to delete retrieved artifact")
		} else if err := m.index.Remove(ctx, id, kind); err != nil {
			logctx.FromContext(ctx).Log.WithError(err).Warn("Failed to unindex retrieved artifact")
		}
	}
	return data, kind, nil
}

// Subscribe attaches to the live record stream of a request. The subscription ends with a terminal
// status; subscribing to a request that has already terminated yields the status straight away.
func (m *Manager) Subscribe(id string) (*stream.Subscription, error) {
	req, err := m.lookup(id, false)
	if err != nil {
		return nil, err
	}
	sub := m.hub.Subscribe(req.Id())
	// The collector finishes the hub only after the state is terminal, so checking afterwards cannot
	// miss the end of the stream.
	switch req.State() {
	case request.Finished:
		m.hub.FinishSubscription(sub, stream.StatusCompleted)
	case request.Stopped:
		m.hub.FinishSubscription(sub, stream.StatusStopped)
	}
	return sub, nil
}

// Unsubscribe detaches a subscription before it has ended.
func (m *Manager) Unsubscribe(sub *stream.Subscription) {
	m.hub.Unsubscribe(sub)
}

func (m *Manager) Status(id string) (request.Status, error) {
	req, err := m.lookup(id, false)
	if err != nil {
		return request.Status{}, err
	}
	return req.Status(), nil
}

// Reap removes Finished requests nobody drained and Created requests nobody started.
func (m *Manager) Reap(now time.Time) []string {
	reaped := m.registry.Reap(now, m.options.FinishedRetention, m.options.IdleTimeout)
	if len(reaped) > 0 {
		m.ctx.Log.WithField("requests", reaped).Info("Reaped stale requests")
	}
	return reaped
}

// Shutdown stops every collection and waits, at most until ctx is done, for them to clean up.
// Requests that were never started are abandoned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	for _, req := range m.registry.List() {
		if req.Abandon() {
			m.registry.Remove(req.Id())
			continue
		}
		select {
		case <-req.Done():
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for collections to stop")
		}
	}
	return nil
}
