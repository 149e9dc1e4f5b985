package history

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/backups/app/backup"
)

func TestFile_Append(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "backup.log")
	f := NewFile(fname)

	require.NoError(t, f.Append(backup.Outcome{Timestamp: "20230411-120000", Success: true,
		Source: "/src/a.txt", Destination: "/backups/a.txt-20230411-120000"}))
	require.NoError(t, f.Append(backup.Outcome{Timestamp: "20230411-120001", Source: "/src/b.txt",
		Detail: "source does not exist"}))

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS 20230411-120000 Backed-up /src/a.txt to /backups/a.txt-20230411-120000\n"+
		"FAILURE 20230411-120001 Source file/directory: /src/b.txt, source does not exist\n", string(data))
	assert.Equal(t, fname, f.String())
}

func TestFile_AppendErrors(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "no-such-dir", "backup.log"))
	err := f.Append(backup.Outcome{Timestamp: "1", Success: true})
	assert.ErrorIs(t, err, ErrNotFound)

	f = NewFile(t.TempDir()) // a directory can't be opened for writing
	err = f.Append(backup.Outcome{Timestamp: "1", Success: true})
	assert.ErrorIs(t, err, ErrUnwritable)
}

type failLog struct{ calls int }

func (f *failLog) Append(backup.Outcome) error {
	f.calls++
	return errors.New("failed")
}

func TestMulti_Append(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "backup.log")
	fl := &failLog{}
	m := Multi{fl, NewFile(fname), nil}

	err := m.Append(backup.Outcome{Timestamp: "1", Success: true, Source: "/a", Destination: "/b"})
	require.EqualError(t, err, "failed")
	assert.Equal(t, 1, fl.calls)

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS 1 Backed-up /a to /b\n", string(data), "written despite first logger failure")

	assert.NoError(t, Multi{}.Append(backup.Outcome{}))
}

func TestSQLite_AppendRecent(t *testing.T) {
	store, err := NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(backup.Outcome{Job: "job1", Timestamp: "20230101-000000", Success: true,
		Source: "/a", Destination: "/b/a-20230101-000000", Detail: "backed-up"}))
	require.NoError(t, store.Append(backup.Outcome{Job: "job2", Timestamp: "20230101-000001", Source: "/x",
		Detail: "source does not exist"}))
	require.NoError(t, store.Append(backup.Outcome{Job: "job1", Timestamp: "20230101-000002", Source: "/c",
		Detail: "destination directory does not exist"}))

	res, err := store.Recent("job1", 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "20230101-000002", res[0].Timestamp, "newest first")
	assert.False(t, res[0].Success)
	assert.EqualError(t, res[0].Err, "destination directory does not exist")
	assert.Equal(t, "/b/a-20230101-000000", res[1].Destination)
	assert.True(t, res[1].Success)

	res, err = store.Recent("job1", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = store.Recent("unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestNewSQLite_InvalidPath(t *testing.T) {
	store, err := NewSQLite("/invalid/path/that/does/not/exist/history.db")
	assert.Error(t, err)
	assert.Nil(t, store)
}
