// Package resumer marks immediate-mode runs in progress, so runs interrupted by a crash or
// kill can be detected and repeated on the next start
package resumer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/go-pkgz/lgr"
)

const suffix = ".backup"

// Resumer keeps track of running jobs in .backup files
type Resumer struct {
	location string
	enabled  bool
	maxAge   time.Duration
	seq      uint64
}

// Run keeps marker file name and the job name
type Run struct {
	Job   string
	Fname string
}

// New makes resumer for given location. Disabled resumer does nothing and lists nothing.
func New(location string, enabled bool) *Resumer {
	if enabled {
		if err := os.MkdirAll(location, 0o700); err != nil {
			log.Printf("[WARN] can't make %s, %s", location, err)
		}
	}
	return &Resumer{location: location, enabled: enabled, maxAge: 24 * time.Hour}
}

// OnStart makes a marker file for the started job as ts-seq.backup
func (r *Resumer) OnStart(job string) (string, error) {
	if !r.enabled {
		return "", nil
	}
	seq := atomic.AddUint64(&r.seq, 1)
	fname := filepath.Join(r.location, fmt.Sprintf("%d-%d%s", time.Now().UnixNano(), seq, suffix))
	log.Printf("[DEBUG] create resumer file %s", fname)
	return fname, os.WriteFile(fname, []byte(job), 0o600)
}

// OnFinish removes marker file
func (r *Resumer) OnFinish(fname string) error {
	if !r.enabled || fname == "" {
		return nil
	}
	log.Printf("[DEBUG] delete resumer file %s", fname)
	return os.Remove(fname)
}

// List returns interrupted runs, oldest first. Markers older than max age are deleted and skipped.
func (r *Resumer) List() (res []Run) {
	if !r.enabled {
		return []Run{}
	}

	entries, err := os.ReadDir(r.location)
	if err != nil {
		log.Printf("[WARN] can't get resume list for %s, %s", r.location, err)
		return []Run{}
	}

	res = []Run{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		finfo, err := entry.Info()
		if err != nil {
			log.Printf("[WARN] can't get resume info for %s, %s", entry.Name(), err)
			continue
		}

		fileName := filepath.Join(r.location, finfo.Name())
		if finfo.ModTime().Add(r.maxAge).Before(time.Now()) {
			log.Printf("[DEBUG] resume file %s too old", fileName)
			if err := os.Remove(fileName); err != nil {
				log.Printf("[WARN] can't delete %s, %s", fileName, err)
			}
			continue
		}
		data, err := os.ReadFile(fileName) //nolint:gosec // file from resumer location
		if err != nil {
			log.Printf("[WARN] failed to read resume file %s, %s", fileName, err)
			continue
		}
		run := Run{Fname: fileName, Job: strings.TrimSpace(string(data))}
		log.Printf("[DEBUG] resume entry %+v", run)
		res = append(res, run)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Fname < res[j].Fname })
	return res
}

func (r *Resumer) String() string {
	return fmt.Sprintf("enabled:%v, location:%s", r.enabled, r.location)
}
