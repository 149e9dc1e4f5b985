package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadSaveRoundTrip(t *testing.T) {
	tbl := []struct {
		name string
		cat  Catalog
	}{
		{"no jobs", Catalog{BackupDir: "/backups", Jobs: []Job{}}},
		{"single job", Catalog{BackupDir: "/backups", Jobs: []Job{{Name: "Job1", Sources: []string{"/src/a.txt"}}}}},
		{"many jobs", Catalog{BackupDir: "/var/backups", Jobs: []Job{
			{Name: "docs", Sources: []string{"/home/user/docs", "/home/user/notes.txt"}},
			{Name: "etc", Sources: []string{"/etc"}},
			{Name: "web", Sources: []string{"/srv/www", "/srv/conf", "/srv/data"}},
		}}},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			st := NewStore(filepath.Join(t.TempDir(), "backups.dat"))
			require.NoError(t, st.Save(tt.cat))
			res, err := st.Load()
			require.NoError(t, err)
			assert.Equal(t, tt.cat, res)
		})
	}
}

func TestStore_SaveTrims(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "backups.dat")
	st := NewStore(fname)
	err := st.Save(Catalog{BackupDir: "/backups \t\n", Jobs: []Job{{Name: "job1", Sources: []string{" /a ", "/b"}}}})
	require.NoError(t, err)

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Equal(t, "/backups\njob1 /a:/b\n", string(data))

	res, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "/backups", res.BackupDir)
	assert.Equal(t, []string{"/a", "/b"}, res.Jobs[0].Sources)
}

func TestStore_SaveNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(filepath.Join(dir, "backups.dat"))
	require.NoError(t, st.Save(Catalog{BackupDir: "/b", Jobs: []Job{{Name: "j", Sources: []string{"/s"}}}}))
	require.NoError(t, st.Save(Catalog{BackupDir: "/b2"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "backups.dat", entries[0].Name())
}

func TestStore_SaveErrors(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "no-such-dir", "backups.dat"))
	err := st.Save(Catalog{BackupDir: "/b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnwritable)

	st = NewStore(filepath.Join(t.TempDir(), "backups.dat"))
	err = st.Save(Catalog{BackupDir: ""})
	assert.ErrorIs(t, err, ErrUnwritable)
	err = st.Save(Catalog{BackupDir: "/b", Jobs: []Job{{Name: "j"}}})
	assert.ErrorIs(t, err, ErrUnwritable)
}

func TestStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewStore(filepath.Join(dir, "missing.dat")).Load()
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewStore(dir).Load() // directory can't be read as a file
	assert.ErrorIs(t, err, ErrUnreadable)

	fname := filepath.Join(dir, "bad.dat")
	require.NoError(t, os.WriteFile(fname, []byte("/backups\njob1 /a\nbroken-line\n"), 0o600))
	_, err = NewStore(fname).Load()
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "line 3")
}

func TestParse(t *testing.T) {
	tbl := []struct {
		inp     string
		res     Catalog
		corrupt bool
	}{
		{"/backups\n", Catalog{BackupDir: "/backups", Jobs: []Job{}}, false},
		{"/backups", Catalog{BackupDir: "/backups", Jobs: []Job{}}, false},
		{"/backups\r\njob1 /a:/b  \r\n\n", Catalog{BackupDir: "/backups",
			Jobs: []Job{{Name: "job1", Sources: []string{"/a", "/b"}}}}, false},
		{"/backups\njob1  /a::/b\n", Catalog{BackupDir: "/backups",
			Jobs: []Job{{Name: "job1", Sources: []string{"/a", "/b"}}}}, false},
		{"", Catalog{}, true},
		{"\njob1 /a\n", Catalog{}, true},
		{"/backups\njob1\n", Catalog{}, true},
		{"/backups\njob1 :\n", Catalog{}, true},
		{"/backups\n /a\n", Catalog{}, true},
	}

	for i, tt := range tbl {
		res, err := Parse([]byte(tt.inp))
		if tt.corrupt {
			assert.ErrorIs(t, err, ErrCorrupt, "case #%d", i)
			continue
		}
		require.NoError(t, err, "case #%d", i)
		assert.Equal(t, tt.res, res, "case #%d", i)
	}
}

func TestCatalog_Delete(t *testing.T) {
	c := Catalog{BackupDir: "/b", Jobs: []Job{
		{Name: "a", Sources: []string{"/a"}},
		{Name: "b", Sources: []string{"/b"}},
		{Name: "c", Sources: []string{"/c"}},
		{Name: "d", Sources: []string{"/d"}},
	}}
	for i := range c.Jobs {
		cc := c.Clone()
		require.NoError(t, cc.Delete(i))
		assert.Len(t, cc.Jobs, 3)
		names := []string{}
		for _, j := range cc.Jobs {
			names = append(names, j.Name)
		}
		exp := []string{}
		for k, j := range c.Jobs {
			if k != i {
				exp = append(exp, j.Name)
			}
		}
		assert.Equal(t, exp, names)
	}
	assert.Len(t, c.Jobs, 4, "original untouched")

	assert.Error(t, c.Delete(-1))
	assert.Error(t, c.Delete(4))
}

func TestCatalog_AddReplace(t *testing.T) {
	c := Catalog{BackupDir: "/b"}
	c.Add(Job{Name: "a", Sources: []string{"/a"}})
	c.Add(Job{Name: "b", Sources: []string{"/b"}})
	require.Len(t, c.Jobs, 2)
	assert.Equal(t, "b", c.Jobs[1].Name)

	require.NoError(t, c.Replace(0, Job{Name: "z", Sources: []string{"/z"}}))
	assert.Equal(t, "z", c.Jobs[0].Name)
	assert.Error(t, c.Replace(2, Job{}))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "myjob", NormalizeName("my job"))
	assert.Equal(t, "myjob", NormalizeName(" \tmy\njob "))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestParseSources(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b c"}, ParseSources(" /a :/b c: "))
	assert.Equal(t, []string{}, ParseSources(""))
	assert.Equal(t, "/a:/b", Job{Sources: []string{"/a", "/b"}}.SourceList())
}
