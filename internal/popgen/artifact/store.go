package artifact

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/popgen/internal/common/popgenerrors"
	"github.com/G-Research/popgen/internal/common/requestid"
)

const (
	finalSuffix   = ".zip"
	tempSuffix    = ".tmp"
	journalSuffix = ".json"
)

// Artifact describes a published export.
type Artifact struct {
	RequestId string
	Kind      Kind
	Path      string
	Created   time.Time
}

// Entry is a file found in the artifact directory.
type Entry struct {
	RequestId string
	Kind      Kind
	Path      string
	ModTime   time.Time
	// Temp is set for partially written packages that were never published.
	Temp bool
}

// Store owns the on-disk layout of request output. Final and temporary packages live in the artifact
// directory; journals and tabular scratch files live in the work directory.
//
// Every path is derived from a validated request id and kind, so callers can never address a file
// outside the two directories.
type Store struct {
	dir     string
	workDir string
}

func NewStore(dir string, workDir string) (*Store, error) {
	for _, d := range []string{dir, workDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating directory %s", d)
		}
	}
	return &Store{dir: dir, workDir: workDir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) WorkDir() string {
	return s.workDir
}

// HealthCheck fails if either directory has gone away or is no longer a directory.
func (s *Store) HealthCheck() error {
	for _, d := range []string{s.dir, s.workDir} {
		info, err := os.Stat(d)
		if err != nil {
			return &popgenerrors.ErrArtifactIO{Path: d, Err: errors.WithStack(err)}
		}
		if !info.IsDir() {
			return &popgenerrors.ErrArtifactIO{Path: d, Err: errors.New("not a directory")}
		}
	}
	return nil
}

func (s *Store) FinalPath(id string, kind Kind) (string, error) {
	return s.path(s.dir, id, kind, finalSuffix)
}

func (s *Store) TempPath(id string, kind Kind) (string, error) {
	return s.path(s.dir, id, kind, tempSuffix)
}

func (s *Store) JournalPath(id string, kind Kind) (string, error) {
	return s.path(s.workDir, id, kind, journalSuffix)
}

// TableDir is the scratch directory in which a generator writes tabular output for the request.
func (s *Store) TableDir(id string) (string, error) {
	if err := requestid.Validate(id); err != nil {
		return "", err
	}
	return filepath.Join(s.workDir, strings.ToLower(id)), nil
}

func (s *Store) path(dir string, id string, kind Kind, suffix string) (string, error) {
	if err := requestid.Validate(id); err != nil {
		return "", err
	}
	if kind != KindDefault && kind != KindCSV {
		return "", &popgenerrors.ErrInvalidIdentifier{Name: "output kind", Value: string(kind)}
	}
	return filepath.Join(dir, strings.ToLower(id)+"-"+string(kind)+suffix), nil
}

// Publish renames the fully written temporary package onto its final path.
func (s *Store) Publish(id string, kind Kind) (*Artifact, error) {
	tmp, err := s.TempPath(id, kind)
	if err != nil {
		return nil, err
	}
	final, err := s.FinalPath(id, kind)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, final); err != nil {
		return nil, &popgenerrors.ErrArtifactIO{Path: final, Err: errors.WithStack(err)}
	}
	info, err := os.Stat(final)
	if err != nil {
		return nil, &popgenerrors.ErrArtifactIO{Path: final, Err: errors.WithStack(err)}
	}
	return &Artifact{RequestId: strings.ToLower(id), Kind: kind, Path: final, Created: info.ModTime()}, nil
}

// Read returns the content of a published package. A missing file, including one removed by a concurrent
// sweep, is reported as ErrNotFound.
func (s *Store) Read(id string, kind Kind) ([]byte, error) {
	final, err := s.FinalPath(id, kind)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(final)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &popgenerrors.ErrNotFound{Type: "artifact", Value: id + "-" + string(kind)}
	} else if err != nil {
		return nil, &popgenerrors.ErrArtifactIO{Path: final, Err: errors.WithStack(err)}
	}
	return data, nil
}

// Delete removes the published package. Deleting an absent package is not an error.
func (s *Store) Delete(id string, kind Kind) error {
	final, err := s.FinalPath(id, kind)
	if err != nil {
		return err
	}
	return removeIfPresent(final)
}

// Discard removes everything a request may have left behind: package, temporary package, journal
// and tabular scratch files.
func (s *Store) Discard(id string, kind Kind) error {
	var paths []string
	for _, f := range []func(string, Kind) (string, error){s.FinalPath, s.TempPath, s.JournalPath} {
		p, err := f(id, kind)
		if err != nil {
			return err
		}
		paths = append(paths, p)
	}
	for _, p := range paths {
		if err := removeIfPresent(p); err != nil {
			return err
		}
	}
	return s.RemoveTables(id)
}

// RemoveTables deletes the request's tabular scratch directory, if any.
func (s *Store) RemoveTables(id string) error {
	dir, err := s.TableDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return &popgenerrors.ErrArtifactIO{Path: dir, Err: errors.WithStack(err)}
	}
	return nil
}

// RemoveEntry deletes a file previously returned by List.
func (s *Store) RemoveEntry(e Entry) error {
	return removeIfPresent(e.Path)
}

// List returns the packages and temporaries currently in the artifact directory. Files whose names do not
// follow the store's naming scheme are ignored.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &popgenerrors.ErrArtifactIO{Path: s.dir, Err: errors.WithStack(err)}
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		entry, ok := parseEntryName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, &popgenerrors.ErrArtifactIO{Path: de.Name(), Err: errors.WithStack(err)}
		}
		entry.Path = filepath.Join(s.dir, de.Name())
		entry.ModTime = info.ModTime()
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseEntryName splits "<id>-<kind>.zip" or "<id>-<kind>.tmp". Ids are 36 characters long.
func parseEntryName(name string) (Entry, bool) {
	ext := filepath.Ext(name)
	if ext != finalSuffix && ext != tempSuffix {
		return Entry{}, false
	}
	stem := strings.TrimSuffix(name, ext)
	if len(stem) < 38 || stem[36] != '-' {
		return Entry{}, false
	}
	id, kindStr := stem[:36], stem[37:]
	if !requestid.IsValid(id) {
		return Entry{}, false
	}
	kind := Kind(kindStr)
	if kind != KindDefault && kind != KindCSV {
		return Entry{}, false
	}
	return Entry{RequestId: id, Kind: kind, Temp: ext == tempSuffix}, true
}

func removeIfPresent(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return &popgenerrors.ErrArtifactIO{Path: path, Err: errors.WithStack(err)}
}
