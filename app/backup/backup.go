// Package backup copies job sources into the backup directory under timestamped names and
// records an outcome for every source. Sources are processed strictly in order, a failed
// source never stops the rest of the job, nothing is rolled back.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/backups/app/catalog"
)

// TimestampFormat is YYYYMMDD-HHMMSS, used for destination names and log lines
const TimestampFormat = "20060102-150405"

// maxDestinationSuffix limits dst-N candidates tried when the timestamped name is taken
const maxDestinationSuffix = 99

// per-source failures
var (
	ErrSourceMissing      = errors.New("source does not exist")
	ErrDestinationMissing = errors.New("destination directory does not exist")
	ErrDestinationExists  = errors.New("destination already exists")
)

// Logger appends outcome records, one per call, in the order produced
type Logger interface {
	Append(o Outcome) error
}

// Outcome is the result of processing a single source of a job
type Outcome struct {
	Job         string
	Timestamp   string
	Success     bool
	Source      string
	Destination string // set on success only
	Detail      string
	Err         error // underlying failure, nil on success
	LogErr      error // set if the outcome failed to reach the log
}

// Message is the text written to the log after status and timestamp
func (o Outcome) Message() string {
	switch {
	case o.Success:
		return fmt.Sprintf("Backed-up %s to %s", o.Source, o.Destination)
	case o.Source == "":
		return o.Detail
	default:
		return fmt.Sprintf("Source file/directory: %s, %s", o.Source, o.Detail)
	}
}

// Status is SUCCESS or FAILURE
func (o Outcome) Status() string {
	if o.Success {
		return "SUCCESS"
	}
	return "FAILURE"
}

// String formats the outcome as a log line without trailing newline
func (o Outcome) String() string {
	return o.Status() + " " + o.Timestamp + " " + o.Message()
}

// Runner executes backup jobs. Log is optional, Now defaults to time.Now
type Runner struct {
	Log Logger
	Now func() time.Time
}

// Run copies every source of the job to backupDir. Each outcome is logged and passed to report
// (if not nil) before the next source starts. Returns all outcomes in source order.
func (r *Runner) Run(job catalog.Job, backupDir string, report func(Outcome)) []Outcome {
	log.Printf("[INFO] run job %q, %d sources to %s", job.Name, len(job.Sources), backupDir)
	res := make([]Outcome, 0, len(job.Sources))
	for _, src := range job.Sources {
		o := r.backupSource(job.Name, src, backupDir)
		o = r.record(o)
		if report != nil {
			report(o)
		}
		res = append(res, o)
	}
	return res
}

// Skip records a failure for every source of the job without touching the filesystem
func (r *Runner) Skip(job catalog.Job, reason string) []Outcome {
	log.Printf("[INFO] skip job %q, %s", job.Name, reason)
	res := make([]Outcome, 0, len(job.Sources))
	for _, src := range job.Sources {
		err := fmt.Errorf("skipped, %s", reason)
		res = append(res, r.record(Outcome{Job: job.Name, Timestamp: r.timestamp(), Source: src,
			Detail: err.Error(), Err: err}))
	}
	return res
}

// Fail records a job-level failure not related to any source, e.g. unknown job name
func (r *Runner) Fail(jobName, detail string) Outcome {
	return r.record(Outcome{Job: jobName, Timestamp: r.timestamp(), Detail: detail, Err: errors.New(detail)})
}

func (r *Runner) backupSource(jobName, src, backupDir string) Outcome {
	res := Outcome{Job: jobName, Timestamp: r.timestamp(), Source: src}
	fail := func(err error) Outcome {
		res.Err, res.Detail = err, err.Error()
		return res
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fail(ErrSourceMissing)
		}
		return fail(err)
	}

	if st, err := os.Stat(backupDir); err != nil || !st.IsDir() {
		return fail(ErrDestinationMissing)
	}

	dst, err := freeDestination(Destination(backupDir, src, res.Timestamp))
	if err != nil {
		return fail(err)
	}

	if srcInfo.IsDir() {
		err = copyTree(src, dst)
	} else {
		err = copyFile(src, dst)
	}
	if err != nil {
		return fail(err)
	}

	res.Success, res.Destination, res.Detail = true, dst, "backed-up"
	return res
}

func (r *Runner) record(o Outcome) Outcome {
	if o.Success {
		log.Printf("[INFO] %s", o.String())
	} else {
		log.Printf("[WARN] %s", o.String())
	}
	if r.Log == nil {
		return o
	}
	if err := r.Log.Append(o); err != nil {
		log.Printf("[WARN] can't log outcome for %s, %v", o.Source, err)
		o.LogErr = err
	}
	return o
}

func (r *Runner) timestamp() string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return now().Format(TimestampFormat)
}

// freeDestination returns dst if nothing exists there, otherwise the first free dst-N.
// Sources with the same base name backed up within one second get distinct names this way.
func freeDestination(dst string) (string, error) {
	if _, err := os.Lstat(dst); err != nil {
		return dst, nil
	}
	for i := 1; i <= maxDestinationSuffix; i++ {
		name := fmt.Sprintf("%s-%d", dst, i)
		if _, err := os.Lstat(name); err != nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrDestinationExists, dst)
}

// Destination makes backupDir/<base(src)>-<timestamp>, base name keeps its extension
func Destination(backupDir, src, timestamp string) string {
	return filepath.Join(backupDir, filepath.Base(filepath.Clean(src))+"-"+timestamp)
}
