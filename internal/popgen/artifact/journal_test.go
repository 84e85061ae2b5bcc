package artifact

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_ProducesJsonArray(t *testing.T) {
	store := newTestStore(t)
	journal, err := store.CreateJournal(testId, KindDefault, 2)
	require.NoError(t, err)

	for _, r := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, journal.Append(r))
	}
	assert.Equal(t, 3, journal.Count())
	require.NoError(t, journal.Close())
	require.NoError(t, journal.Close())

	data, err := os.ReadFile(journal.Path())
	require.NoError(t, err)
	var records []map[string]int
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Equal(t, []map[string]int{{"n": 1}, {"n": 2}, {"n": 3}}, records)
}

func TestJournal_FlushesEveryBatch(t *testing.T) {
	store := newTestStore(t)
	journal, err := store.CreateJournal(testId, KindDefault, 2)
	require.NoError(t, err)
	defer journal.Discard()

	require.NoError(t, journal.Append(`1`))
	data, err := os.ReadFile(journal.Path())
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, journal.Append(`2`))
	data, err = os.ReadFile(journal.Path())
	require.NoError(t, err)
	assert.Equal(t, "[\n1,\n2", string(data))
}

func TestJournal_Empty(t *testing.T) {
	store := newTestStore(t)
	journal, err := store.CreateJournal(testId, KindDefault, 0)
	require.NoError(t, err)
	require.NoError(t, journal.Close())

	data, err := os.ReadFile(journal.Path())
	require.NoError(t, err)
	var records []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Empty(t, records)
}

func TestJournal_AppendAfterClose(t *testing.T) {
	store := newTestStore(t)
	journal, err := store.CreateJournal(testId, KindDefault, 0)
	require.NoError(t, err)
	require.NoError(t, journal.Close())
	assert.Error(t, journal.Append(`1`))
}
