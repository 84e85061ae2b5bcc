package artifact

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/G-Research/popgen/internal/common/popgenerrors"
)

// TablesMemberPrefix is the folder inside a csv package that holds the tabular files.
const TablesMemberPrefix = "csv/"

// MetadataMemberName is the package member holding the request configuration.
func MetadataMemberName(id string) string {
	return id + "-config.json"
}

// RecordsMemberName is the package member holding the JSON array of records.
func RecordsMemberName(id string) string {
	return id + ".json"
}

// Assemble packages the closed journal, the configuration and, for KindCSV, the request's tabular files
// into the temporary package and publishes it. On success the journal and tabular files are removed.
// On failure no temporary or final package is left behind.
func (s *Store) Assemble(id string, kind Kind, config []byte) (*Artifact, error) {
	tmp, err := s.TempPath(id, kind)
	if err != nil {
		return nil, err
	}
	journal, err := s.JournalPath(id, kind)
	if err != nil {
		return nil, err
	}
	tables := ""
	if kind == KindCSV {
		if tables, err = s.TableDir(id); err != nil {
			return nil, err
		}
	}

	if err := writePackage(tmp, id, config, journal, tables); err != nil {
		_ = removeIfPresent(tmp)
		return nil, err
	}
	artifact, err := s.Publish(id, kind)
	if err != nil {
		_ = removeIfPresent(tmp)
		return nil, err
	}

	_ = removeIfPresent(journal)
	if tables != "" {
		_ = s.RemoveTables(id)
	}
	return artifact, nil
}

func writePackage(path string, id string, config []byte, journal string, tables string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &popgenerrors.ErrArtifactIO{Path: path, Err: errors.WithStack(err)}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = &popgenerrors.ErrArtifactIO{Path: path, Err: errors.WithStack(closeErr)}
		}
	}()

	zw := zip.NewWriter(f)
	if err := writeMember(zw, MetadataMemberName(id), bytes.NewReader(config)); err != nil {
		return &popgenerrors.ErrArtifactIO{Path: path, Err: err}
	}
	if err := copyFileMember(zw, RecordsMemberName(id), journal); err != nil {
		return &popgenerrors.ErrArtifactIO{Path: path, Err: err}
	}
	if tables != "" {
		names, err := tableFiles(tables)
		if err != nil {
			return &popgenerrors.ErrArtifactIO{Path: tables, Err: err}
		}
		for _, name := range names {
			if err := copyFileMember(zw, TablesMemberPrefix+name, filepath.Join(tables, name)); err != nil {
				return &popgenerrors.ErrArtifactIO{Path: path, Err: err}
			}
		}
	}
	if err := zw.Close(); err != nil {
		return &popgenerrors.ErrArtifactIO{Path: path, Err: errors.WithStack(err)}
	}
	if err := f.Sync(); err != nil {
		return &popgenerrors.ErrArtifactIO{Path: path, Err: errors.WithStack(err)}
	}
	return nil
}

func writeMember(zw *zip.Writer, name string, r io.Reader) error {
	w, err := zw.Create(name)
	if err != nil {
		return errors.Wrapf(err, "creating member %s", name)
	}
	if _, err := io.Copy(w, r); err != nil {
		return errors.Wrapf(err, "writing member %s", name)
	}
	return nil
}

func copyFileMember(zw *zip.Writer, name string, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	return writeMember(zw, name, f)
}

// tableFiles lists the regular files of dir in name order. A missing directory has no tables.
func tableFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.WithStack(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
