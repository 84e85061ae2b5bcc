package sweeper

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/popgen/internal/common/logging"
	"github.com/G-Research/popgen/internal/common/util"
	"github.com/G-Research/popgen/internal/popgen/artifact"
	"github.com/G-Research/popgen/internal/popgen/metrics"
)

// Reaper drops requests that no caller is going to collect. It is implemented by the manager.
type Reaper interface {
	Reap(now time.Time) []string
}

// Result summarises one sweep.
type Result struct {
	ArtifactsDeleted   int
	TemporariesDeleted int
	RequestsReaped     int
}

// Sweeper deletes artifacts and orphaned temporaries older than MaxAge and reaps stale requests.
type Sweeper struct {
	store   *artifact.Store
	index   artifact.Index
	reaper  Reaper
	maxAge  time.Duration
	clock   util.Clock
	metrics *metrics.Metrics
	log     *log.Entry
}

func New(store *artifact.Store, index artifact.Index, reaper Reaper, maxAge time.Duration, clock util.Clock, m *metrics.Metrics) *Sweeper {
	if clock == nil {
		clock = &util.DefaultClock{}
	}
	return &Sweeper{
		store:   store,
		index:   index,
		reaper:  reaper,
		maxAge:  maxAge,
		clock:   clock,
		metrics: m,
		log:     log.WithField("component", "sweeper"),
	}
}

// Run sweeps once, logging rather than returning errors. For use with a BackgroundTaskManager.
func (s *Sweeper) Run() {
	result, err := s.Sweep(context.Background())
	if err != nil {
		logging.WithStacktrace(s.log, err).Warn("Sweep finished with errors")
	}
	if result.ArtifactsDeleted+result.TemporariesDeleted+result.RequestsReaped > 0 {
		s.log.WithFields(log.Fields{
			"artifacts":   result.ArtifactsDeleted,
			"temporaries": result.TemporariesDeleted,
			"requests":    result.RequestsReaped,
		}).Info("Sweep removed expired entries")
	}
}

// Sweep removes everything that has expired. A failure on one file does not stop the sweep; all failures
// are returned together.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var result Result
	var errs *multierror.Error
	now := s.clock.Now()

	if s.reaper != nil {
		result.RequestsReaped = len(s.reaper.Reap(now))
	}

	entries, err := s.store.List()
	if err != nil {
		return result, err
	}
	for _, entry := range entries {
		created := entry.ModTime
		if !entry.Temp {
			indexed, ok, err := s.index.Get(ctx, entry.RequestId, entry.Kind)
			if err != nil {
				errs = multierror.Append(errs, errors.WithMessagef(err, "looking up %s", entry.Path))
			} else if ok {
				created = indexed.Created
			}
		}
		if now.Sub(created) <= s.maxAge {
			continue
		}

		if err := s.store.RemoveEntry(entry); err != nil {
			s.metrics.RecordSweepError()
			s.log.WithError(err).Warnf("Failed to delete %s", entry.Path)
			errs = multierror.Append(errs, err)
			continue
		}
		if entry.Temp {
			result.TemporariesDeleted++
			s.metrics.RecordSwept("temporary")
			continue
		}
		result.ArtifactsDeleted++
		s.metrics.RecordSwept("artifact")
		if err := s.index.Remove(ctx, entry.RequestId, entry.Kind); err != nil {
			errs = multierror.Append(errs, errors.WithMessagef(err, "unindexing %s", entry.Path))
		}
		s.log.WithField("path", entry.Path).Debug("Deleted expired artifact")
	}

	if err := s.pruneIndex(ctx, now); err != nil {
		errs = multierror.Append(errs, err)
	}
	return result, errs.ErrorOrNil()
}

// pruneIndex drops expired index rows whose files are already gone, e.g. deleted on retrieval.
func (s *Sweeper) pruneIndex(ctx context.Context, now time.Time) error {
	indexed, err := s.index.List(ctx)
	if err != nil {
		return err
	}
	var errs *multierror.Error
	for _, a := range indexed {
		if now.Sub(a.Created) <= s.maxAge {
			continue
		}
		if err := s.index.Remove(ctx, a.RequestId, a.Kind); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
