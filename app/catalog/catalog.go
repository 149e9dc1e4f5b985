// Package catalog keeps the list of backup jobs edited in maintenance mode and persists it
// in a simple line-oriented text file. First line is the backup directory, every next line is
// "name source1:source2:...".
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/go-pkgz/lgr"
)

// storage errors, wrapped with details by Store
var (
	ErrNotFound   = errors.New("catalog not found")
	ErrUnreadable = errors.New("catalog is not readable")
	ErrUnwritable = errors.New("catalog is not writable")
	ErrCorrupt    = errors.New("catalog is corrupt")
)

// SourceSeparator separates source paths of a job in the persisted form
const SourceSeparator = ":"

// Job is a named list of source paths sharing the catalog's backup directory
type Job struct {
	Name    string
	Sources []string
}

// Catalog is the backup directory plus ordered list of jobs
type Catalog struct {
	BackupDir string
	Jobs      []Job
}

// SourceList returns sources joined the way they are stored
func (j Job) SourceList() string {
	return strings.Join(j.Sources, SourceSeparator)
}

// Validate checks name and sources are set
func (j Job) Validate() error {
	if j.Name == "" {
		return errors.New("empty job name")
	}
	if strings.ContainsFunc(j.Name, isSpace) {
		return fmt.Errorf("job name %q contains whitespace", j.Name)
	}
	if len(j.Sources) == 0 {
		return fmt.Errorf("job %q has no sources", j.Name)
	}
	return nil
}

// Validate checks backup dir and every job
func (c Catalog) Validate() error {
	if strings.TrimSpace(c.BackupDir) == "" {
		return errors.New("empty backup directory")
	}
	for i, j := range c.Jobs {
		if err := j.Validate(); err != nil {
			return fmt.Errorf("job %d: %w", i+1, err)
		}
	}
	return nil
}

// Add appends job to the end of the list
func (c *Catalog) Add(j Job) {
	c.Jobs = append(c.Jobs, j)
}

// Delete removes job by zero-based index, keeping order of the rest
func (c *Catalog) Delete(idx int) error {
	if idx < 0 || idx >= len(c.Jobs) {
		return fmt.Errorf("job index %d out of range [0,%d)", idx, len(c.Jobs))
	}
	c.Jobs = append(c.Jobs[:idx:idx], c.Jobs[idx+1:]...)
	return nil
}

// Replace sets job at zero-based index
func (c *Catalog) Replace(idx int, j Job) error {
	if idx < 0 || idx >= len(c.Jobs) {
		return fmt.Errorf("job index %d out of range [0,%d)", idx, len(c.Jobs))
	}
	c.Jobs[idx] = j
	return nil
}

// Clone makes a deep copy, so the caller can mutate it without touching the original
func (c Catalog) Clone() Catalog {
	res := Catalog{BackupDir: c.BackupDir, Jobs: make([]Job, len(c.Jobs))}
	for i, j := range c.Jobs {
		res.Jobs[i] = Job{Name: j.Name, Sources: append([]string(nil), j.Sources...)}
	}
	return res
}

// NormalizeName strips all whitespace from a job name, the name is a single token on disk
func NormalizeName(name string) string {
	return strings.Join(strings.FieldsFunc(name, isSpace), "")
}

// ParseSources splits colon-separated sources, trims them and drops empty elements
func ParseSources(s string) []string {
	res := []string{}
	for _, src := range strings.Split(s, SourceSeparator) {
		if src = strings.TrimSpace(src); src != "" {
			res = append(res, src)
		}
	}
	return res
}

// Store loads and saves Catalog from/to a file. Assumes it is the only writer.
type Store struct {
	file string
}

// NewStore makes Store for the file, doesn't read anything yet
func NewStore(file string) *Store {
	return &Store{file: file}
}

// Load reads and parses the catalog file. Any malformed line rejects the whole file.
func (s *Store) Load() (Catalog, error) {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Catalog{}, fmt.Errorf("%w: %s", ErrNotFound, s.file)
		}
		return Catalog{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	res, err := Parse(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("%s: %w", s.file, err)
	}
	log.Printf("[DEBUG] loaded %d jobs from %s, backup dir %s", len(res.Jobs), s.file, res.BackupDir)
	return res, nil
}

// Save writes catalog to a temp file next to the target and renames it in place
func (s *Store) Save(c Catalog) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	if err := writeAtomic(s.file, Format(c)); err != nil {
		return fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	log.Printf("[INFO] saved %d jobs to %s", len(c.Jobs), s.file)
	return nil
}

func (s *Store) String() string { return s.file }

// Parse decodes catalog content
func Parse(data []byte) (Catalog, error) {
	lines := strings.Split(string(data), "\n")
	res := Catalog{Jobs: []Job{}}
	first := true
	for i, l := range lines {
		l = strings.TrimRightFunc(l, isSpace)
		if first {
			if strings.TrimSpace(l) == "" {
				return Catalog{}, fmt.Errorf("%w: line 1, empty backup directory", ErrCorrupt)
			}
			res.BackupDir = l
			first = false
			continue
		}
		if l == "" {
			continue
		}
		name, sources, ok := strings.Cut(l, " ")
		if !ok {
			return Catalog{}, fmt.Errorf("%w: line %d, no separator in %q", ErrCorrupt, i+1, l)
		}
		job := Job{Name: strings.TrimSpace(name), Sources: ParseSources(sources)}
		if err := job.Validate(); err != nil {
			return Catalog{}, fmt.Errorf("%w: line %d, %w", ErrCorrupt, i+1, err)
		}
		res.Jobs = append(res.Jobs, job)
	}
	if first {
		return Catalog{}, fmt.Errorf("%w: no backup directory", ErrCorrupt)
	}
	return res, nil
}

// Format encodes catalog in the persisted form
func Format(c Catalog) []byte {
	buf := bytes.Buffer{}
	buf.WriteString(strings.TrimRight(c.BackupDir, " \t\r\n"))
	buf.WriteString("\n")
	for _, j := range c.Jobs {
		buf.WriteString(NormalizeName(j.Name))
		buf.WriteString(" ")
		buf.WriteString(strings.TrimSpace(strings.Join(ParseSources(j.SourceList()), SourceSeparator)))
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".backups-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	}
	return false
}
