// Package session implements interactive maintenance of the job catalog. Session is a state
// machine, each state handler draws its screen, reads operator input and returns the next state.
// The catalog is loaded once, mutated in memory and written back on save only.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/backups/app/backup"
	"github.com/umputun/backups/app/catalog"
	"github.com/umputun/backups/app/pager"
)

// State of the session
type State int

// session states
const (
	MainList State = iota
	EnterJobNumber
	AddJob
	ViewJob
	ChangeJob
	DeleteConfirm
	Running
	EditBackupDir
	Save
	SaveConfirmOnExit
	Done
)

var stateNames = map[State]string{
	MainList: "main-list", EnterJobNumber: "enter-job-number", AddJob: "add-job", ViewJob: "view-job",
	ChangeJob: "change-job", DeleteConfirm: "delete-confirm", Running: "running", EditBackupDir: "edit-backup-dir",
	Save: "save", SaveConfirmOnExit: "save-confirm-on-exit", Done: "done",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "state-" + strconv.Itoa(int(s))
}

// operator messages
const (
	msgInvalidNumber = "Invalid job number"
	msgNameRequired  = "Job name is required"
	msgSrcRequired   = "Sources are required"
	msgSaved         = "Backups saved"
	msgNotSaved      = "Backups not saved. Save Y/N?"
)

// input limits passed to LineEditor
const (
	jobNumberLen = 6
	jobNameLen   = 40
)

// number of recent history records shown by view
const historyLimit = 5

// Store loads and saves the catalog, implemented by catalog.Store
type Store interface {
	Load() (catalog.Catalog, error)
	Save(c catalog.Catalog) error
}

// Runner executes a job, implemented by backup.Runner
type Runner interface {
	Run(job catalog.Job, backupDir string, report func(backup.Outcome)) []backup.Outcome
}

// History provides recent outcomes of a job, implemented by history.SQLite
type History interface {
	Recent(job string, limit int) ([]backup.Outcome, error)
}

// Session is an interactive catalog maintenance. History is optional.
type Session struct {
	Store   Store
	Runner  Runner
	History History
	Term    Terminal
	Editor  LineEditor

	done      <-chan struct{} // closed when the session is terminated, unblocks key and line reads
	cat       catalog.Catalog
	dirty     bool
	firstRow  int
	selection int   // zero-based index of the last selected job, -1 if none
	pending   State // command waiting for a job number
	message   string
	msgStyle  Style
}

// Run loads the catalog and processes operator commands until exit.
// Returns error on catalog load failure only.
func (s *Session) Run(ctx context.Context) error {
	cat, err := s.Store.Load()
	if err != nil {
		return fmt.Errorf("can't load catalog: %w", err)
	}
	s.cat, s.dirty, s.firstRow, s.selection = cat, false, 0, -1
	s.done = ctx.Done()
	log.Printf("[INFO] session started, %d jobs, backup dir %s", len(cat.Jobs), cat.BackupDir)

	state := MainList
	for state != Done {
		if ctx.Err() != nil {
			log.Printf("[WARN] session terminated, %v, dirty: %v", ctx.Err(), s.dirty)
			break
		}
		next := s.step(state)
		log.Printf("[DEBUG] state %s -> %s", state, next)
		state = next
	}
	s.Term.Clear()
	log.Printf("[INFO] session completed, dirty: %v", s.dirty)
	return nil
}

// Dirty reports unsaved changes
func (s *Session) Dirty() bool { return s.dirty }

// Catalog returns a copy of the current in-memory catalog
func (s *Session) Catalog() catalog.Catalog { return s.cat.Clone() }

func (s *Session) step(state State) State {
	switch state {
	case MainList:
		return s.mainList()
	case EnterJobNumber:
		return s.enterJobNumber()
	case AddJob:
		return s.addJob()
	case ViewJob:
		return s.viewJob()
	case ChangeJob:
		return s.changeJob()
	case DeleteConfirm:
		return s.deleteConfirm()
	case Running:
		return s.runJob()
	case EditBackupDir:
		return s.editBackupDir()
	case Save:
		return s.save()
	case SaveConfirmOnExit:
		return s.saveConfirmOnExit()
	default:
		log.Printf("[WARN] unexpected state %s", state)
		return MainList
	}
}

func (s *Session) mainList() State {
	s.drawMain()
	s.message = "" // transient, shown once

	key, next, ok := s.readKey()
	if !ok {
		return next
	}

	switch key {
	case KeyUp, 'k', 'K':
		s.firstRow = pager.ScrollUp(s.firstRow)
		return MainList
	case KeyDown, 'j', 'J':
		s.firstRow = pager.ScrollDown(s.firstRow, len(s.cat.Jobs))
		return MainList
	case KeyInterrupt, 'x', 'X', 'q', 'Q':
		if s.dirty {
			return SaveConfirmOnExit
		}
		return Done
	}

	switch toUpper(key) {
	case 'R':
		s.pending = Running
		return EnterJobNumber
	case 'V':
		s.pending = ViewJob
		return EnterJobNumber
	case 'C':
		s.pending = ChangeJob
		return EnterJobNumber
	case 'D':
		s.pending = DeleteConfirm
		return EnterJobNumber
	case 'A':
		return AddJob
	case 'B':
		return EditBackupDir
	case 'S':
		return Save
	}
	return MainList // unknown keys ignored
}

func (s *Session) enterJobNumber() State {
	inp, next, ok := s.edit(fmt.Sprintf("%s job number: ", commandName(s.pending)), "", jobNumberLen)
	if !ok {
		return next
	}
	n, err := strconv.Atoi(strings.TrimSpace(inp))
	if err != nil || n < 1 || n > len(s.cat.Jobs) {
		s.flash(msgInvalidNumber, StyleError)
		return MainList
	}
	s.selection = n - 1
	return s.pending
}

func (s *Session) addJob() State {
	name, next, ok := s.promptRequired("Job name: ", jobNameLen, msgNameRequired, catalog.NormalizeName)
	if !ok {
		return next
	}
	srcLine, next, ok := s.promptRequired("Sources (path1:path2): ", 0, msgSrcRequired, func(v string) string {
		return strings.Join(catalog.ParseSources(v), catalog.SourceSeparator)
	})
	if !ok {
		return next
	}

	s.cat.Add(catalog.Job{Name: name, Sources: catalog.ParseSources(srcLine)})
	s.selection = len(s.cat.Jobs) - 1
	s.dirty = true
	s.flash(fmt.Sprintf("Job %s added", name), StyleSuccess)
	log.Printf("[INFO] job %q added", name)
	return MainList
}

// promptRequired asks for a value until normalized input is not empty
func (s *Session) promptRequired(prompt string, maxLen int, required string, normalize func(string) string) (string, State, bool) {
	for {
		inp, next, ok := s.edit(prompt, "", maxLen)
		if !ok {
			return "", next, false
		}
		if v := normalize(inp); v != "" {
			return v, MainList, true
		}
		s.flash(required, StyleError)
		s.drawStatus()
	}
}

func (s *Session) viewJob() State {
	job := s.cat.Jobs[s.selection]
	w, h := s.Term.Size()
	lines := []line{
		{fmt.Sprintf("Job %d: %s", s.selection+1, job.Name), StyleTitle},
		{"Backup directory: " + s.cat.BackupDir, StyleNormal},
		{"Sources:", StyleHeader},
	}
	for _, src := range job.Sources {
		lines = append(lines, line{"  " + src, StyleNormal})
	}

	if s.History != nil {
		recs, err := s.History.Recent(job.Name, historyLimit)
		switch {
		case err != nil:
			log.Printf("[WARN] can't get history for %s, %v", job.Name, err)
			lines = append(lines, line{"History is not available: " + err.Error(), StyleError})
		case len(recs) == 0:
			lines = append(lines, line{"No recent runs", StyleInfo})
		default:
			lines = append(lines, line{"Recent runs:", StyleHeader})
			for _, o := range recs {
				lines = append(lines, line{"  " + o.String(), outcomeStyle(o)})
			}
		}
	}

	s.Term.Clear()
	s.drawLines(lines, w, h-1)
	s.Term.WriteAt(h-1, 0, fit("Press any key to continue", w), StylePrompt)
	if _, next, ok := s.readKey(); !ok {
		return next
	}
	return MainList
}

func (s *Session) changeJob() State {
	old := s.cat.Jobs[s.selection]

	inp, next, ok := s.edit("Job name: ", old.Name, jobNameLen)
	if !ok {
		return next
	}
	name := old.Name
	if v := catalog.NormalizeName(inp); v != "" {
		name = v
	}

	inp, next, ok = s.edit("Sources (path1:path2): ", old.SourceList(), 0)
	if !ok {
		return next
	}
	sources := old.Sources
	if v := catalog.ParseSources(inp); len(v) > 0 {
		sources = v
	}

	upd := catalog.Job{Name: name, Sources: sources}
	if upd.Name == old.Name && upd.SourceList() == old.SourceList() {
		s.flash("No changes", StyleInfo)
		return MainList
	}
	if err := s.cat.Replace(s.selection, upd); err != nil {
		s.flash(err.Error(), StyleError)
		return MainList
	}
	s.dirty = true
	s.flash(fmt.Sprintf("Job %s changed", name), StyleSuccess)
	log.Printf("[INFO] job %q changed to %+v", old.Name, upd)
	return MainList
}

func (s *Session) deleteConfirm() State {
	job := s.cat.Jobs[s.selection]
	w, h := s.Term.Size()
	s.drawMain()
	s.Term.WriteAt(h-1, 0, fit(fmt.Sprintf("Delete job %d %s (%s)? Y/N", s.selection+1, job.Name, job.SourceList()), w),
		StylePrompt)

	key, next, ok := s.readKey()
	if !ok {
		return next
	}
	if toUpper(key) != 'Y' {
		s.flash("Job not deleted", StyleInfo)
		return MainList
	}
	if err := s.cat.Delete(s.selection); err != nil {
		s.flash(err.Error(), StyleError)
		return MainList
	}
	s.selection = -1
	s.firstRow = pager.Clamp(s.firstRow, len(s.cat.Jobs))
	s.dirty = true
	s.flash(fmt.Sprintf("Job %s deleted", job.Name), StyleSuccess)
	log.Printf("[INFO] job %q deleted", job.Name)
	return MainList
}

func (s *Session) runJob() State {
	job := s.cat.Jobs[s.selection]
	w, h := s.Term.Size()
	lines := []line{{fmt.Sprintf("Running job %s, backup directory %s", job.Name, s.cat.BackupDir), StyleTitle}}
	s.Term.Clear()
	s.drawLines(lines, w, h-1)

	failed := 0
	outcomes := s.Runner.Run(job, s.cat.BackupDir, func(o backup.Outcome) {
		lines = append(lines, line{o.String(), outcomeStyle(o)})
		if o.LogErr != nil {
			lines = append(lines, line{"  log write failed: " + o.LogErr.Error(), StyleError})
		}
		if !o.Success {
			failed++
		}
		s.drawLines(lines, w, h-1)
	})

	summary := fmt.Sprintf("Job %s completed, %d of %d sources failed", job.Name, failed, len(outcomes))
	style := StyleSuccess
	if failed > 0 {
		style = StyleError
	}
	s.Term.WriteAt(h-1, 0, fit(summary+". Press any key to continue", w), style)
	if _, next, ok := s.readKey(); !ok {
		return next
	}
	s.flash(summary, style)
	return MainList
}

func (s *Session) editBackupDir() State {
	inp, next, ok := s.edit("Backup directory: ", s.cat.BackupDir, 0)
	if !ok {
		return next
	}
	dir := strings.TrimSpace(inp)
	if dir == "" || dir == s.cat.BackupDir {
		s.flash("Backup directory not changed", StyleInfo)
		return MainList
	}
	s.cat.BackupDir = dir
	s.dirty = true
	s.flash("Backup directory changed to "+dir, StyleSuccess)
	log.Printf("[INFO] backup directory changed to %s", dir)
	return MainList
}

func (s *Session) save() State {
	if err := s.store(); err != nil {
		return MainList
	}
	s.flash(msgSaved, StyleSuccess)
	return MainList
}

func (s *Session) saveConfirmOnExit() State {
	w, h := s.Term.Size()
	s.drawMain()
	s.Term.WriteAt(h-1, 0, fit(msgNotSaved, w), StylePrompt)
	key, next, ok := s.readKey()
	if !ok {
		return next
	}
	if toUpper(key) != 'Y' {
		log.Printf("[INFO] unsaved changes discarded")
		return Done
	}
	if err := s.store(); err != nil {
		return MainList
	}
	return Done
}

// store saves catalog and resets dirty flag, failure is flashed to the operator
func (s *Session) store() error {
	if err := s.Store.Save(s.cat); err != nil {
		log.Printf("[WARN] can't save catalog, %v", err)
		s.flash("Save failed: "+err.Error(), StyleError)
		return err
	}
	s.dirty = false
	return nil
}

// readKey returns the next key. Not ok means the key is not available and the session
// should move to the returned state: Done on closed input or termination, MainList on other errors.
func (s *Session) readKey() (Key, State, bool) {
	type keyRead struct {
		key Key
		err error
	}
	ch := make(chan keyRead, 1)
	go func() {
		k, err := s.Term.ReadKey()
		ch <- keyRead{key: k, err: err}
	}()

	var kr keyRead
	select {
	case kr = <-ch:
	case <-s.done:
		log.Printf("[WARN] terminated while waiting for a key, dirty: %v", s.dirty)
		return 0, Done, false
	}

	if kr.err == nil {
		return kr.key, MainList, true
	}
	if errors.Is(kr.err, io.EOF) {
		log.Printf("[WARN] terminal input closed, dirty: %v", s.dirty)
		return 0, Done, false
	}
	log.Printf("[WARN] can't read key, %v", kr.err)
	s.flash("Terminal error: "+kr.err.Error(), StyleError)
	return 0, MainList, false
}

// edit reads a line at the prompt row, cancellation returns to the main list without changes
func (s *Session) edit(prompt, initial string, maxLen int) (string, State, bool) {
	type lineRead struct {
		val string
		err error
	}
	_, h := s.Term.Size()
	ch := make(chan lineRead, 1)
	go func() {
		v, err := s.Editor.Edit(h-1, prompt, initial, maxLen)
		ch <- lineRead{val: v, err: err}
	}()

	var lr lineRead
	select {
	case lr = <-ch:
	case <-s.done:
		log.Printf("[WARN] terminated while waiting for input, dirty: %v", s.dirty)
		return "", Done, false
	}

	switch {
	case lr.err == nil:
		return lr.val, MainList, true
	case errors.Is(lr.err, ErrCancelled):
		s.flash("Cancelled", StyleInfo)
		return "", MainList, false
	case errors.Is(lr.err, io.EOF):
		log.Printf("[WARN] terminal input closed, dirty: %v", s.dirty)
		return "", Done, false
	default:
		log.Printf("[WARN] can't read input, %v", lr.err)
		s.flash("Terminal error: "+lr.err.Error(), StyleError)
		return "", MainList, false
	}
}

func (s *Session) flash(msg string, style Style) {
	s.message, s.msgStyle = msg, style
}

func commandName(st State) string {
	switch st {
	case Running:
		return "Run"
	case ViewJob:
		return "View"
	case ChangeJob:
		return "Change"
	case DeleteConfirm:
		return "Delete"
	}
	return "Select"
}

func outcomeStyle(o backup.Outcome) Style {
	if o.Success {
		return StyleSuccess
	}
	return StyleError
}

func toUpper(k Key) Key {
	if k >= 'a' && k <= 'z' {
		return k - 'a' + 'A'
	}
	return k
}
