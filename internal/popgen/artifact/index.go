package artifact

import (
	"context"
	"sort"
	"sync"
)

// Index records when each artifact was published. The sweeper prefers these timestamps over file
// modification times, which copying or restoring a directory can reset.
type Index interface {
	Setup(ctx context.Context) error
	Add(ctx context.Context, artifact *Artifact) error
	Get(ctx context.Context, id string, kind Kind) (*Artifact, bool, error)
	Remove(ctx context.Context, id string, kind Kind) error
	List(ctx context.Context) ([]*Artifact, error)
	HealthCheck(ctx context.Context) error
}

type indexKey struct {
	id   string
	kind Kind
}

// InMemoryIndex is an Index that forgets everything on restart.
type InMemoryIndex struct {
	lock      sync.RWMutex
	artifacts map[indexKey]*Artifact
}

func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{artifacts: map[indexKey]*Artifact{}}
}

func (idx *InMemoryIndex) Setup(_ context.Context) error {
	return nil
}

func (idx *InMemoryIndex) Add(_ context.Context, artifact *Artifact) error {
	idx.lock.Lock()
	defer idx.lock.Unlock()
	a := *artifact
	idx.artifacts[indexKey{artifact.RequestId, artifact.Kind}] = &a
	return nil
}

func (idx *InMemoryIndex) Get(_ context.Context, id string, kind Kind) (*Artifact, bool, error) {
	idx.lock.RLock()
	defer idx.lock.RUnlock()
	a, ok := idx.artifacts[indexKey{id, kind}]
	if !ok {
		return nil, false, nil
	}
	copied := *a
	return &copied, true, nil
}

func (idx *InMemoryIndex) Remove(_ context.Context, id string, kind Kind) error {
	idx.lock.Lock()
	defer idx.lock.Unlock()
	delete(idx.artifacts, indexKey{id, kind})
	return nil
}

func (idx *InMemoryIndex) List(_ context.Context) ([]*Artifact, error) {
	idx.lock.RLock()
	defer idx.lock.RUnlock()
	result := make([]*Artifact, 0, len(idx.artifacts))
	for _, a := range idx.artifacts {
		copied := *a
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Created.Before(result[j].Created)
	})
	return result, nil
}

func (idx *InMemoryIndex) HealthCheck(_ context.Context) error {
	return nil
}
