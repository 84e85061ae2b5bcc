package artifact

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMembers(t *testing.T, data []byte) map[string][]byte {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	members := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		members[f.Name] = content
	}
	return members
}

func TestAssemble_Default(t *testing.T) {
	store := newTestStore(t)
	journal, err := store.CreateJournal(testId, KindDefault, 0)
	require.NoError(t, err)
	require.NoError(t, journal.Append(`{"n":1}`))
	require.NoError(t, journal.Append(`{"n":2}`))
	require.NoError(t, journal.Close())

	artifact, err := store.Assemble(testId, KindDefault, []byte(`{"seed":42}`))
	require.NoError(t, err)
	assert.Equal(t, KindDefault, artifact.Kind)
	assert.FileExists(t, artifact.Path)
	assert.NoFileExists(t, journal.Path())
	tmp, _ := store.TempPath(testId, KindDefault)
	assert.NoFileExists(t, tmp)

	data, err := store.Read(testId, KindDefault)
	require.NoError(t, err)
	members := readMembers(t, data)
	require.Len(t, members, 2)
	assert.JSONEq(t, `{"seed":42}`, string(members[MetadataMemberName(testId)]))

	var records []json.RawMessage
	require.NoError(t, json.Unmarshal(members[RecordsMemberName(testId)], &records))
	assert.Len(t, records, 2)
}

func TestAssemble_CSVIncludesTables(t *testing.T) {
	store := newTestStore(t)
	journal, err := store.CreateJournal(testId, KindCSV, 0)
	require.NoError(t, err)
	require.NoError(t, journal.Close())
	tables, _ := store.TableDir(testId)
	require.NoError(t, os.MkdirAll(tables, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tables, "patients.csv"), []byte("id\n1\n"), 0o644))

	_, err = store.Assemble(testId, KindCSV, []byte(`{}`))
	require.NoError(t, err)
	assert.NoDirExists(t, tables)

	data, err := store.Read(testId, KindCSV)
	require.NoError(t, err)
	members := readMembers(t, data)
	assert.Equal(t, "id\n1\n", string(members[TablesMemberPrefix+"patients.csv"]))
}

func TestAssemble_MissingJournal_LeavesNothing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Assemble(testId, KindDefault, []byte(`{}`))
	assert.Error(t, err)

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
