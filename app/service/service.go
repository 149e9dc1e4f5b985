// Package service runs a single job from the static job table without any UI (immediate mode).
// It wires table lookup, host conditions, resumer, backup runner and notifications together.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/backups/app/backup"
	"github.com/umputun/backups/app/catalog"
	"github.com/umputun/backups/app/conditions"
	"github.com/umputun/backups/app/jobtable"
	"github.com/umputun/backups/app/resumer"
)

//go:generate moq -out mocks/notifier.go -pkg mocks -skip-ensure -fmt goimports . Notifier
//go:generate moq -out mocks/condition_checker.go -pkg mocks -skip-ensure -fmt goimports . ConditionChecker

// Service is immediate-mode entry point
type Service struct {
	Table             JobTable
	Runner            Runner
	Resumer           Resumer
	Notifier          Notifier
	ConditionChecker  ConditionChecker
	Repeater          Repeater
	HostName          string
	NotifyMaxLogLines int
	NotifyTimeout     time.Duration
}

// Result summarizes a job run
type Result struct {
	Job      string
	Outcomes []backup.Outcome
	Failed   int
}

// JobTable provides job definitions by name
type JobTable interface {
	Lookup(name string) (jobtable.Job, error)
	Dir() string
	String() string
}

// Runner executes backup jobs, implemented by backup.Runner
type Runner interface {
	Run(job catalog.Job, backupDir string, report func(backup.Outcome)) []backup.Outcome
	Skip(job catalog.Job, reason string) []backup.Outcome
	Fail(jobName, detail string) backup.Outcome
}

// Resumer defines interface for resumer.Resumer providing re-run of interrupted jobs
type Resumer interface {
	OnStart(job string) (string, error)
	OnFinish(fname string) error
	List() (res []resumer.Run)
	String() string
}

// Notifier interface defines notification delivery on failed or completed runs
type Notifier interface {
	Send(ctx context.Context, subj, text string) error
	IsOnError() bool
	IsOnCompletion() bool
	MakeErrorHTML(job, backupDir, outcomeLog string) (string, error)
	MakeCompletionHTML(job, backupDir, outcomeLog string) (string, error)
}

// ConditionChecker defines interface for checking job execution conditions
type ConditionChecker interface {
	Check(cfg conditions.Config) (bool, string)
}

// Repeater repeats failed function, used for notification delivery
type Repeater interface {
	Do(ctx context.Context, fun func() error, errors ...error) (err error)
}

// Do runs the named job. Interrupted runs from the previous start are repeated first.
// Source failures are reported in Result, the error is returned for unknown job only.
func (s *Service) Do(ctx context.Context, name string) (Result, error) {
	s.resumeInterrupted(ctx)

	job, err := s.Table.Lookup(name)
	if err != nil {
		s.Runner.Fail(name, fmt.Sprintf("Job: %s not found", name))
		return Result{Job: name}, err
	}
	return s.runJob(ctx, job), nil
}

func (s *Service) runJob(ctx context.Context, job jobtable.Job) Result {
	res := Result{Job: job.Name}
	backupDir := s.Table.Dir()

	capture := NewOutputCapture(s.NotifyMaxLogLines)
	collect := func(outcomes ...backup.Outcome) {
		for _, o := range outcomes {
			if !o.Success {
				res.Failed++
			}
			_, _ = capture.Write([]byte(o.String() + "\n"))
		}
		res.Outcomes = append(res.Outcomes, outcomes...)
	}

	if ok, reason := s.checkConditions(job, backupDir); !ok {
		collect(s.Runner.Skip(job.Job(), reason)...)
		s.notify(ctx, job.Name, backupDir, capture.GetOutput(), true)
		return res
	}

	rfile, rerr := s.Resumer.OnStart(job.Name) // register run prior to execution
	if rerr != nil {
		log.Printf("[WARN] failed to initiate resumer for %s, %v", job.Name, rerr)
	}

	log.Printf("[INFO] executing job %q from %s", job.Name, s.Table.String())
	s.Runner.Run(job.Job(), backupDir, func(o backup.Outcome) { collect(o) })
	log.Printf("[INFO] completed job %q, %d of %d sources failed", job.Name, res.Failed, len(res.Outcomes))

	if rerr == nil {
		if err := s.Resumer.OnFinish(rfile); err != nil {
			log.Printf("[WARN] failed to finish resumer for %s, %v", rfile, err)
		}
	}

	s.notify(ctx, job.Name, backupDir, capture.GetOutput(), res.Failed > 0)
	return res
}

func (s *Service) checkConditions(job jobtable.Job, backupDir string) (ok bool, reason string) {
	if job.Conditions == nil || s.ConditionChecker == nil {
		return true, ""
	}
	cfg := *job.Conditions
	if cfg.DiskFreeAbove != nil && cfg.DiskFreePath == "" {
		cfg.DiskFreePath = backupDir
	}
	ok, reason = s.ConditionChecker.Check(cfg)
	if !ok {
		log.Printf("[INFO] job %q skipped, reason: %s", job.Name, reason)
	}
	return ok, reason
}

// notify sends error or completion report, failures are logged only
func (s *Service) notify(ctx context.Context, jobName, backupDir, outcomeLog string, failed bool) {
	if s.Notifier == nil || reflect.ValueOf(s.Notifier).IsNil() {
		return
	}

	var subj, msg string
	var err error
	switch {
	case failed && s.Notifier.IsOnError():
		subj = fmt.Sprintf("backup %q failed on %s", jobName, s.HostName)
		msg, err = s.Notifier.MakeErrorHTML(jobName, backupDir, outcomeLog)
	case !failed && s.Notifier.IsOnCompletion():
		subj = fmt.Sprintf("backup %q completed on %s", jobName, s.HostName)
		msg, err = s.Notifier.MakeCompletionHTML(jobName, backupDir, outcomeLog)
	default:
		return
	}
	if err != nil {
		log.Printf("[WARN] can't make html email for %s, %v", jobName, err)
		return
	}

	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	send := func() error { return s.Notifier.Send(ctxTimeout, subj, msg) }
	if s.Repeater != nil {
		err = s.Repeater.Do(ctxTimeout, send)
	} else {
		err = send()
	}
	if err != nil {
		log.Printf("[WARN] failed to send notification %q, %v", subj, err)
		return
	}
	log.Printf("[DEBUG] notification %q sent", subj)
}

// resumeInterrupted repeats runs left unfinished by a previous process, one by one
func (s *Service) resumeInterrupted(ctx context.Context) {
	runs := s.Resumer.List()
	if len(runs) == 0 {
		return
	}
	log.Printf("[INFO] interrupted runs detected - %+v", runs)

	resumed := map[string]bool{} // several markers of the same job make a single run
	for _, r := range runs {
		job, err := s.Table.Lookup(r.Job)
		switch {
		case errors.Is(err, jobtable.ErrJobNotFound):
			log.Printf("[WARN] interrupted job %q not in %s anymore, dropped", r.Job, s.Table.String())
		case err != nil:
			log.Printf("[WARN] can't resume %q, %v", r.Job, err)
		case resumed[r.Job]:
			log.Printf("[DEBUG] interrupted job %q already resumed", r.Job)
		default:
			log.Printf("[INFO] resume interrupted job %q", r.Job)
			s.runJob(ctx, job)
			resumed[r.Job] = true
		}
		if err := s.Resumer.OnFinish(r.Fname); err != nil {
			log.Printf("[WARN] failed to finish resumer for %s, %v", r.Fname, err)
		}
	}
}
