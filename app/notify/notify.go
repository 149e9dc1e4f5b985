// Package notify delivers immediate-mode error and completion reports by email
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
)

// Service sends notifications to all configured destinations
type Service struct {
	destinations       []notify.Notifier
	fromEmail          string
	toEmail            []string
	onError            bool
	onCompletion       bool
	errorTemplate      string
	completionTemplate string
	hostName           string
}

// Params defines what to notify about and which templates to use
type Params struct {
	EnabledError       bool
	EnabledCompletion  bool
	ErrorTemplate      string // optional file with custom html template
	CompletionTemplate string // optional file with custom html template
	HostName           string
}

// SendersParams defines email destination
type SendersParams struct {
	notify.SMTPParams
	FromEmail string
	ToEmails  []string
}

// NewService makes notification service, returns nil if no recipients configured
func NewService(p Params, sp SendersParams) *Service {
	if len(sp.ToEmails) == 0 {
		return nil
	}
	res := &Service{
		destinations:       []notify.Notifier{notify.NewEmail(sp.SMTPParams)},
		fromEmail:          sp.FromEmail,
		toEmail:            sp.ToEmails,
		onError:            p.EnabledError,
		onCompletion:       p.EnabledCompletion,
		errorTemplate:      p.ErrorTemplate,
		completionTemplate: p.CompletionTemplate,
		hostName:           p.HostName,
	}
	log.Printf("[INFO] notifications to %v, on error: %v, on completion: %v", sp.ToEmails, p.EnabledError, p.EnabledCompletion)
	return res
}

// Send delivers message with given subject to all destinations
func (s *Service) Send(ctx context.Context, subj, text string) error {
	q := url.Values{}
	q.Set("from", s.fromEmail)
	q.Set("subject", subj)
	dest := "mailto:" + strings.Join(s.toEmail, ",") + "?" + q.Encode()
	return notify.Send(ctx, s.destinations, dest, text)
}

// IsOnError tells if notifications on failed runs are enabled
func (s *Service) IsOnError() bool { return s.onError }

// IsOnCompletion tells if notifications on successful runs are enabled
func (s *Service) IsOnCompletion() bool { return s.onCompletion }

// MakeErrorHTML renders error report for the job with outcome log lines
func (s *Service) MakeErrorHTML(job, backupDir, outcomeLog string) (string, error) {
	return s.render(s.errorTemplate, defaultErrorTemplate, job, backupDir, outcomeLog)
}

// MakeCompletionHTML renders completion report for the job
func (s *Service) MakeCompletionHTML(job, backupDir, outcomeLog string) (string, error) {
	return s.render(s.completionTemplate, defaultCompletionTemplate, job, backupDir, outcomeLog)
}

// render uses custom template file if set and valid, falls back to the default one
func (s *Service) render(file, def, job, backupDir, outcomeLog string) (string, error) {
	data := struct {
		Job       string
		BackupDir string
		TS        time.Time
		Log       string
		Host      string
	}{Job: job, BackupDir: backupDir, TS: time.Now(), Log: outcomeLog, Host: s.hostName}

	tmpl := def
	if file != "" {
		if custom, err := os.ReadFile(file); err == nil { //nolint:gosec // template from config
			if _, perr := template.New("msg").Parse(string(custom)); perr == nil {
				tmpl = string(custom)
			} else {
				log.Printf("[WARN] bad template %s, using default: %v", file, perr)
			}
		} else {
			log.Printf("[WARN] can't read template %s, using default: %v", file, err)
		}
	}

	t, err := template.New("msg").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("can't parse message template: %w", err)
	}
	buf := bytes.Buffer{}
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to apply template: %w", err)
	}
	return buf.String(), nil
}

const htmlHead = `<!DOCTYPE html>
<html>
	<head>
		<meta name="viewport" content="width=device-width" />
		<meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
		<style type="text/css">
			body { font-family: "Arial"; font-size: 1.0em; }
			ul { margin-top: -0.5em; margin-left: -0.5em; }
			pre {
				padding: 0.6em;
				font-size: 0.7em;
				background-color: #E8E2A0;
				font-family: "Menlo";
				overflow-x: auto;
				white-space: pre-wrap;
				word-wrap: break-word;
			}
			.bold { color: #882828; font-weight: 900; }
		</style>
	</head>
`

const defaultErrorTemplate = htmlHead + `	<body>
		<p>Backup failed on <span class="bold">{{.Host}}</span> at {{.TS.Format "2006-01-02T15:04:05Z07:00"}}</p>
		<ul>
			<li>Job: <span class="bold">{{.Job}}</span></li>
			<li>Backup directory: <span class="bold">{{.BackupDir}}</span></li>
		</ul>
		<pre>
{{.Log}}
		</pre>
	</body>
</html>
`

const defaultCompletionTemplate = htmlHead + `	<body>
		<p>Backup completed on <span class="bold">{{.Host}}</span> at {{.TS.Format "2006-01-02T15:04:05Z07:00"}}</p>
		<ul>
			<li>Job: <span class="bold">{{.Job}}</span></li>
			<li>Backup directory: <span class="bold">{{.BackupDir}}</span></li>
		</ul>
		<pre>
{{.Log}}
		</pre>
	</body>
</html>
`
