package request

import "context"

// Workspace tells a generator where it may write files belonging to a request.
type Workspace struct {
	// TableDir receives tabular output; its files are packaged for artifact.KindCSV.
	TableDir string
}

// Generator turns a configuration into a Producer of records.
type Generator interface {
	Configure(ctx context.Context, config Configuration, workspace Workspace) (Producer, error)
}

// Producer yields one serialized record per call to Next. Next may block; it must return
// popgenerrors.ErrInterrupted promptly once ctx is cancelled and must not deliver a record in that case.
// A Producer that also implements io.Closer is closed once no further records will be requested.
type Producer interface {
	Next(ctx context.Context) (string, error)
}
