package configuration

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

type PopgenConfiguration struct {
	HttpPort    uint16 `validate:"required"`
	MetricsPort uint16 `validate:"required"`
	// Maximum time to wait for running collections to clean up on shutdown.
	ShutdownTimeout time.Duration
	// Configuration keys outside the typed fields that callers may set.
	AllowedProperties []string

	Artifacts ArtifactsConfiguration
	Requests  RequestsConfiguration
	Stream    StreamConfiguration
	Generator GeneratorConfiguration
}

type ArtifactsConfiguration struct {
	// Published zips and in-flight temporaries live here.
	Directory string `validate:"required"`
	// Record logs and tabular workspaces live here.
	WorkDirectory string `validate:"required"`
	// Artifacts older than this are deleted by the sweeper.
	MaxAge        time.Duration `validate:"required"`
	SweepInterval time.Duration `validate:"required"`
	// If set, an artifact is deleted once it has been downloaded.
	DeleteOnRetrieval bool
	Index             IndexConfiguration
}

type IndexConfiguration struct {
	Type IndexType
	// Only used by the sqlite index.
	DatabasePath string
}

type RequestsConfiguration struct {
	BufferCapacity    int
	LogFlushBatch     int
	PausePollInterval time.Duration
	MaxPopulation     int
	DefaultPopulation int
	// How long a deregistered terminal request is still recognised.
	TombstoneTtl time.Duration
	// How long a Finished request stays registered if nobody polls it.
	FinishedRetention time.Duration
	// How long a request may stay Created before it is abandoned.
	IdleTimeout time.Duration
}

type StreamConfiguration struct {
	SubscriberBuffer int
}

type GeneratorConfiguration struct {
	// Pause between records, to simulate a slow generator.
	RecordDelay time.Duration
}

type IndexType string

const (
	IndexTypeMemory IndexType = "memory"
	IndexTypeSQLite IndexType = "sqlite"
)

func (t *IndexType) UnmarshalText(text []byte) error {
	switch IndexType(strings.ToLower(string(text))) {
	case "", IndexTypeMemory:
		*t = IndexTypeMemory
	case IndexTypeSQLite:
		*t = IndexTypeSQLite
	default:
		return errors.Errorf("unknown index type %q", string(text))
	}
	return nil
}
