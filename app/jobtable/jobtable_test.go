package jobtable

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/backups/app/catalog"
)

func TestLoad(t *testing.T) {
	tbl, err := Load("testfiles/jobs.yml")
	require.NoError(t, err)
	assert.Equal(t, "/backups", tbl.Dir())
	assert.Equal(t, []string{"job1", "docs"}, tbl.Names())
	assert.Equal(t, "testfiles/jobs.yml", tbl.String())

	j, err := tbl.Lookup("docs")
	require.NoError(t, err)
	assert.Equal(t, catalog.Job{Name: "docs", Sources: []string{"/home/user/docs", "/home/user/notes.txt"}}, j.Job())
	require.NotNil(t, j.Conditions)
	assert.Equal(t, 10, *j.Conditions.DiskFreeAbove)
	assert.InDelta(t, 4.5, *j.Conditions.LoadAvgBelow, 0.001)

	_, err = tbl.Lookup("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = Load("testfiles/no-such-file.yml")
	assert.Error(t, err)
}

func TestParseInvalid(t *testing.T) {
	tbl := []struct {
		name, inp, err string
	}{
		{"no backup dir", "jobs:\n  - {name: a, sources: [/a]}\n", "backup_dir is required"},
		{"no jobs", "backup_dir: /b\n", "at least one job is required"},
		{"empty name", "backup_dir: /b\njobs:\n  - {name: '', sources: [/a]}\n", "job 1: empty job name"},
		{"spaced name", "backup_dir: /b\njobs:\n  - {name: 'a b', sources: [/a]}\n", "contains whitespace"},
		{"no sources", "backup_dir: /b\njobs:\n  - {name: a}\n", "job 1: job \"a\" has no sources"},
		{"blank source", "backup_dir: /b\njobs:\n  - {name: a, sources: ['  ']}\n", "job 1: empty source"},
		{"duplicate", "backup_dir: /b\njobs:\n  - {name: a, sources: [/a]}\n  - {name: a, sources: [/b]}\n",
			"job 2: duplicate name"},
		{"bad percent", "backup_dir: /b\njobs:\n  - {name: a, sources: [/a], conditions: {cpu_below: 120}}\n",
			"conditions.cpu_below must be between 0 and 100"},
		{"bad load", "backup_dir: /b\njobs:\n  - {name: a, sources: [/a], conditions: {load_avg_below: -1}}\n",
			"load_avg_below must not be negative"},
		{"unknown field", "backup_dir: /b\nblah: 1\njobs:\n  - {name: a, sources: [/a]}\n", "field blah not found"},
		{"not yaml", "{{{", "can't parse yaml"},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.inp))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, "Backups Job Table Schema", schema["title"])
	assert.Contains(t, string(data), "backup_dir")
	assert.Contains(t, string(data), "disk_free_above")
}
