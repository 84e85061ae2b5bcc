package artifact

import (
	"bufio"
	"os"

	"github.com/pkg/errors"

	"github.com/G-Research/popgen/internal/common/popgenerrors"
)

// DefaultFlushBatch is the number of records appended between two flushes to stable storage.
const DefaultFlushBatch = 100

// Journal is the durable on-disk log of a request's records. Records are written as the members of a
// single JSON array so that the closed file can be packaged as is.
// Not safe for concurrent use; a journal belongs to one collector.
type Journal struct {
	path       string
	file       *os.File
	w          *bufio.Writer
	count      int
	flushBatch int
	closed     bool
}

// CreateJournal opens the journal for id and kind, truncating any leftover from an earlier run.
func (s *Store) CreateJournal(id string, kind Kind, flushBatch int) (*Journal, error) {
	path, err := s.JournalPath(id, kind)
	if err != nil {
		return nil, err
	}
	if flushBatch <= 0 {
		flushBatch = DefaultFlushBatch
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, &popgenerrors.ErrArtifactIO{Path: path, Err: errors.WithStack(err)}
	}
	j := &Journal{
		path:       path,
		file:       file,
		w:          bufio.NewWriter(file),
		flushBatch: flushBatch,
	}
	if _, err := j.w.WriteString("["); err != nil {
		_ = file.Close()
		return nil, j.ioError(err)
	}
	return j, nil
}

func (j *Journal) Path() string {
	return j.path
}

// Count is the number of records appended so far.
func (j *Journal) Count() int {
	return j.count
}

// Append writes one record, flushing and syncing every flushBatch records.
func (j *Journal) Append(record string) error {
	if j.closed {
		return j.ioError(errors.New("journal is closed"))
	}
	sep := "\n"
	if j.count > 0 {
		sep = ",\n"
	}
	if _, err := j.w.WriteString(sep); err != nil {
		return j.ioError(err)
	}
	if _, err := j.w.WriteString(record); err != nil {
		return j.ioError(err)
	}
	j.count++
	if j.count%j.flushBatch == 0 {
		return j.Flush()
	}
	return nil
}

// Flush pushes buffered records to the file and syncs it.
func (j *Journal) Flush() error {
	if err := j.w.Flush(); err != nil {
		return j.ioError(err)
	}
	if err := j.file.Sync(); err != nil {
		return j.ioError(err)
	}
	return nil
}

// Close terminates the array, flushes and closes the file. Closing twice is a no-op.
func (j *Journal) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	if _, err := j.w.WriteString("\n]\n"); err != nil {
		_ = j.file.Close()
		return j.ioError(err)
	}
	if err := j.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	if err := j.file.Close(); err != nil {
		return j.ioError(err)
	}
	return nil
}

// Discard closes the journal if needed and deletes it.
func (j *Journal) Discard() error {
	if !j.closed {
		j.closed = true
		_ = j.file.Close()
	}
	return removeIfPresent(j.path)
}

func (j *Journal) ioError(err error) error {
	return &popgenerrors.ErrArtifactIO{Path: j.path, Err: errors.WithStack(err)}
}
