package resumer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumer_OnStart(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "resumer"), true)

	s, err := r.OnStart("job1")
	require.NoError(t, err)
	assert.True(t, filepath.Ext(s) == ".backup")

	data, err := os.ReadFile(s) //nolint:gosec
	require.NoError(t, err)
	assert.Equal(t, "job1", string(data))
}

func TestResumer_OnFinish(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "resumer"), true)

	s, err := r.OnStart("job1")
	require.NoError(t, err)
	require.NoError(t, r.OnFinish(s))
	_, err = os.Stat(s)
	assert.True(t, os.IsNotExist(err))
}

func TestResumer_List(t *testing.T) {
	loc := filepath.Join(t.TempDir(), "resumer")
	r := New(loc, true)

	_, err := r.OnStart("job1")
	require.NoError(t, err)
	_, err = r.OnStart("job2")
	require.NoError(t, err)
	_, err = r.OnStart("job3")
	require.NoError(t, err)

	old := filepath.Join(loc, "old.backup")
	require.NoError(t, os.WriteFile(old, []byte("job-old"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(loc, "other.txt"), []byte("ignored"), 0o600))

	res := r.List()
	require.Len(t, res, 4)

	ts := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(old, ts, ts))
	res = r.List()
	require.Len(t, res, 3)
	assert.Equal(t, []string{"job1", "job2", "job3"}, []string{res[0].Job, res[1].Job, res[2].Job})
	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err), "old marker removed")
}

func TestResumer_Disabled(t *testing.T) {
	loc := filepath.Join(t.TempDir(), "resumer")
	r := New(loc, false)

	s, err := r.OnStart("job1")
	require.NoError(t, err)
	assert.Empty(t, s)
	assert.NoError(t, r.OnFinish(s))
	assert.Empty(t, r.List())
	_, err = os.Stat(loc)
	assert.True(t, os.IsNotExist(err), "location not created")
	assert.Equal(t, "enabled:false, location:"+loc, r.String())
}
