package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	gonotify "github.com/go-pkgz/notify"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/backups/app/backup"
	"github.com/umputun/backups/app/catalog"
	"github.com/umputun/backups/app/conditions"
	"github.com/umputun/backups/app/history"
	"github.com/umputun/backups/app/jobtable"
	"github.com/umputun/backups/app/notify"
	"github.com/umputun/backups/app/resumer"
	"github.com/umputun/backups/app/service"
	"github.com/umputun/backups/app/session"
	"github.com/umputun/backups/app/terminal"
)

var opts struct {
	Catalog     string `short:"c" long:"catalog" env:"BACKUPS_CATALOG" default:"backups.dat" description:"job catalog file for interactive mode"`
	Table       string `short:"t" long:"table" env:"BACKUPS_TABLE" default:"backups.yml" description:"job table file for immediate mode"`
	LogFile     string `short:"l" long:"log-file" env:"BACKUPS_LOG_FILE" default:"backup.log" description:"outcome log file"`
	History     string `long:"history" env:"BACKUPS_HISTORY" description:"sqlite history database, optional"`
	Resume      string `short:"r" long:"resume" env:"BACKUPS_RESUME" description:"auto-resume location, optional"`
	FailOnError bool   `long:"fail-on-error" env:"BACKUPS_FAIL_ON_ERROR" description:"exit with 1 if any source failed in immediate mode"`
	Schema      bool   `long:"schema" description:"print job table json schema and exit"`
	Dbg         bool   `long:"dbg" env:"BACKUPS_DEBUG" description:"debug mode"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable diagnostic log file"`
		Filename        string `long:"filename" env:"FILENAME" default:"backups-diag.log" description:"diagnostic log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"maximum size in megabytes before rotation"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"maximum number of old log files to retain"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"maximum number of days to retain old log files"`
		EnabledCompress bool   `long:"compress" env:"COMPRESS" description:"compress rotated log files"`
	} `group:"log" namespace:"log" env-namespace:"BACKUPS_LOG"`

	Notify struct {
		EnabledError       bool          `long:"enabled-error" env:"ENABLED_ERROR" description:"enable email notifications on errors"`
		EnabledCompletion  bool          `long:"enabled-complete" env:"ENABLED_COMPLETE" description:"enable completion notifications"`
		SMTPHost           string        `long:"smtp-host" env:"SMTP_HOST" description:"SMTP host"`
		SMTPPort           int           `long:"smtp-port" env:"SMTP_PORT" default:"25" description:"SMTP port"`
		SMTPUsername       string        `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP user name"`
		SMTPPassword       string        `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
		SMTPTLS            bool          `long:"smtp-tls" env:"SMTP_TLS" description:"enable SMTP TLS"`
		SMTPStartTLS       bool          `long:"smtp-starttls" env:"SMTP_STARTTLS" description:"enable SMTP StartTLS"`
		SMTPTimeOut        time.Duration `long:"smtp-timeout" env:"SMTP_TIMEOUT" default:"10s" description:"SMTP TCP connection timeout"`
		FromEmail          string        `long:"from" env:"FROM" description:"SMTP from email"`
		ToEmails           []string      `long:"to" env:"TO" description:"SMTP to email(s)" env-delim:","`
		MaxLogLines        int           `long:"max-log" env:"MAX_LOG" default:"100" description:"max number of outcome lines in email"`
		HostName           string        `long:"host" env:"HOSTNAME" description:"host name running backups"`
		ErrorTemplate      string        `long:"err-template" env:"ERR_TEMPLATE" description:"custom error email template file"`
		CompletionTemplate string        `long:"complete-template" env:"COMPLETE_TEMPLATE" description:"custom completion email template file"`
		Timeout            time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"total time limit for a notification"`
		Attempts           int           `long:"attempts" env:"ATTEMPTS" default:"3" description:"delivery attempts"`
	} `group:"notify" namespace:"notify" env-namespace:"BACKUPS_NOTIFY"`
}

var revision = "unknown"

// cpu usage sampling interval for job conditions
const cpuSampleInterval = time.Second

func main() {
	p := flags.NewParser(&opts, flags.Default)
	p.Usage = "[OPTIONS] [JOB]"
	args, err := p.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if !checkArgs(p, args, os.Stderr) {
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM
	code := run(ctx, args)
	cancel()
	os.Exit(code)
}

// checkArgs allows one job argument at most, otherwise prints usage to errOut
func checkArgs(p *flags.Parser, args []string, errOut io.Writer) bool {
	if len(args) <= 1 {
		return true
	}
	fmt.Fprintf(errOut, "too many arguments: %v\n", args)
	p.WriteHelp(errOut)
	return false
}

// run dispatches to schema printing, immediate mode (one job argument) or interactive mode, returns exit code
func run(ctx context.Context, args []string) int {
	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	if opts.Schema {
		return printSchema(os.Stdout)
	}

	interactive := len(args) == 0
	setupLogs(interactive)
	log.Printf("[INFO] backups %s", revision)

	outcomes, hist, err := makeOutcomeLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	if hist != nil {
		defer func() {
			if err := hist.Close(); err != nil {
				log.Printf("[WARN] can't close history, %v", err)
			}
		}()
	}

	if interactive {
		var h session.History
		if hist != nil {
			h = hist
		}
		return runInteractive(ctx, outcomes, h)
	}
	return runImmediate(ctx, args[0], outcomes)
}

func runInteractive(ctx context.Context, outcomes backup.Logger, hist session.History) int {
	con, err := terminal.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	s := session.Session{
		Store:   catalog.NewStore(opts.Catalog),
		Runner:  &backup.Runner{Log: outcomes},
		History: hist,
		Term:    con,
		Editor:  con,
	}
	runErr := s.Run(ctx)
	if err := con.Close(); err != nil {
		log.Printf("[WARN] can't close terminal, %v", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", runErr)
		return 1
	}
	return 0
}

func runImmediate(ctx context.Context, name string, outcomes backup.Logger) int {
	runner := &backup.Runner{Log: outcomes}
	tbl, err := jobtable.Load(opts.Table)
	if err != nil {
		runner.Fail(name, err.Error())
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	svc := service.Service{
		Table:             tbl,
		Runner:            runner,
		Resumer:           resumer.New(opts.Resume, opts.Resume != ""),
		Notifier:          makeNotifier(),
		ConditionChecker:  conditions.NewChecker(cpuSampleInterval),
		Repeater:          repeater.New(&strategy.Backoff{Repeats: opts.Notify.Attempts, Duration: time.Second, Factor: 2, Jitter: true}),
		HostName:          makeHostName(),
		NotifyMaxLogLines: opts.Notify.MaxLogLines,
		NotifyTimeout:     opts.Notify.Timeout,
	}

	res, err := svc.Do(ctx, name)
	if err != nil {
		if errors.Is(err, jobtable.ErrJobNotFound) {
			fmt.Fprintf(os.Stderr, "ERROR: Job: %s not found\n", name)
			return 1
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, o := range res.Outcomes {
		if !o.Success {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", o.Message())
		}
	}
	if res.Failed > 0 && opts.FailOnError {
		return 1
	}
	return 0
}

// makeOutcomeLogger makes the text log and, if configured, sqlite history receiving the same outcomes
func makeOutcomeLogger() (backup.Logger, *history.SQLite, error) {
	file := history.NewFile(opts.LogFile)
	if opts.History == "" {
		return file, nil, nil
	}
	hist, err := history.NewSQLite(opts.History)
	if err != nil {
		return nil, nil, fmt.Errorf("can't open history %s: %w", opts.History, err)
	}
	return history.Multi{file, hist}, hist, nil
}

func printSchema(w io.Writer) int {
	schema, err := jobtable.Schema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	if _, err := fmt.Fprintln(w, string(schema)); err != nil {
		return 1
	}
	return 0
}

func makeNotifier() *notify.Service {
	if !opts.Notify.EnabledError && !opts.Notify.EnabledCompletion {
		return nil
	}

	if opts.Notify.FromEmail == "" {
		opts.Notify.FromEmail = "backups@" + makeHostName()
	}

	return notify.NewService(
		notify.Params{
			EnabledError:       opts.Notify.EnabledError,
			EnabledCompletion:  opts.Notify.EnabledCompletion,
			ErrorTemplate:      opts.Notify.ErrorTemplate,
			CompletionTemplate: opts.Notify.CompletionTemplate,
			HostName:           makeHostName(),
		},
		notify.SendersParams{
			SMTPParams: gonotify.SMTPParams{
				Host:        opts.Notify.SMTPHost,
				Port:        opts.Notify.SMTPPort,
				TLS:         opts.Notify.SMTPTLS,
				StartTLS:    opts.Notify.SMTPStartTLS,
				ContentType: "text/html",
				Charset:     "UTF-8",
				Username:    opts.Notify.SMTPUsername,
				Password:    opts.Notify.SMTPPassword,
				TimeOut:     opts.Notify.SMTPTimeOut,
			},
			FromEmail: opts.Notify.FromEmail,
			ToEmails:  opts.Notify.ToEmails,
		},
	)
}

func makeHostName() string {
	if opts.Notify.HostName != "" {
		return opts.Notify.HostName
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// setupLogs directs logs to the rotated file if enabled. Otherwise interactive mode discards logs,
// the screen belongs to the session, and immediate mode logs to stdout.
func setupLogs(interactive bool) io.Writer {
	var out io.Writer = os.Stdout
	switch {
	case opts.Log.Enabled:
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	case interactive:
		out = io.Discard
	}

	logOpts := []log.Option{log.Out(out), log.Err(out), log.Msec}
	if opts.Dbg {
		logOpts = append(logOpts, log.Debug, log.CallerFunc, log.CallerPkg, log.CallerFile)
	}
	log.Setup(logOpts...)
	return out
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				log.Printf("[INFO] stack trace:\n%s", string(stacktrace[:length]))
				continue
			}
			log.Printf("[WARN] %v received, terminating", sig)
			cancel()
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM)
}
