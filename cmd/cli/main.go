// Command tc is a CLI client for the timecards service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/timecards/internal/convert"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Resource    int       `json:"resource"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "timecards")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "timecards")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tv convert.TokenView) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tv.AccessToken, ExpiresAt: tv.ExpiresAt, Resource: tv.Resource})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

const usageText = `tc CLI
Usage:
  tc [-addr URL] [-cacert file | -insecure] [-timeout d] <cmd> [args]

Commands:
  version
  register      -u <username> -p <password>
  login         -u <username> -p <password>          (saves token)
  list
  create
  get           -id <timecard>
  rm            -id <timecard>
  lines         -id <timecard>
  add-line      -id <timecard> -week N -year N -day D -hours H -project P
  replace-line  -id <timecard> -line <uuid> -week N -year N -day D -hours H -project P
  update-line   -id <timecard> -line <uuid> [-week N] [-year N] [-day D] [-hours H] [-project P]
  transitions   -id <timecard>
  submit        -id <timecard>
  cancel        -id <timecard> [-reason text]
  approve       -id <timecard>
  reject        -id <timecard> [-reason text]
  return        -id <timecard> [-reason text]
  doc           -id <timecard> -rel submittal|cancellation|approval|rejection
`

var (
	version   = "dev"
	buildDate = "unknown"
)

// errUsage makes run print the usage text and exit with 2.
var errUsage = errors.New("usage")

// session is what every subcommand gets to work with.
type session struct {
	ctx context.Context
	api *client
	out io.Writer
}

type command struct {
	auth bool
	run  func(s *session, args []string) error
}

var commands = map[string]command{
	"register":     {run: cmdRegister},
	"login":        {run: cmdLogin},
	"list":         {auth: true, run: cmdList},
	"create":       {auth: true, run: cmdCreate},
	"get":          {auth: true, run: cmdGet},
	"rm":           {auth: true, run: cmdRemove},
	"lines":        {auth: true, run: cmdLines},
	"add-line":     {auth: true, run: cmdAddLine},
	"replace-line": {auth: true, run: cmdReplaceLine},
	"update-line":  {auth: true, run: cmdUpdateLine},
	"transitions":  {auth: true, run: cmdTransitions},
	"submit":       {auth: true, run: transitionCmd("submittal", false)},
	"cancel":       {auth: true, run: transitionCmd("cancellation", true)},
	"approve":      {auth: true, run: transitionCmd("approval", false)},
	"reject":       {auth: true, run: transitionCmd("rejection", true)},
	"return":       {auth: true, run: transitionCmd("return", true)},
	"doc":          {auth: true, run: cmdDocument},
}

// run parses global flags, dispatches one subcommand and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8080", "server URL")
	caPath := fs.String("cacert", "", "CA cert (PEM)")
	insecure := fs.Bool("insecure", false, "skip cert verify (dev)")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	fs.Usage = func() { fmt.Fprint(stderr, usageText) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprint(stderr, usageText)
		return 2
	}
	name, rest := fs.Arg(0), fs.Args()[1:]

	if name == "version" {
		fmt.Fprintf(stdout, "tc %s (%s)\n", version, buildDate)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprint(stderr, usageText)
		return 2
	}

	var token string
	if cmd.auth {
		t, err := loadToken()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		token = t
	}
	tlsCfg, err := loadTLS(*caPath, *insecure)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	hc := &http.Client{Timeout: *timeout}
	if tlsCfg != nil {
		hc.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	s := &session{ctx: ctx, api: newClient(*addr, token, hc), out: stdout}
	if err := cmd.run(s, rest); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(stderr, usageText)
			return 2
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// ---- subcommands ----

func subFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func credentials(name string, args []string) (string, string, error) {
	fs := subFlags(name)
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return "", "", errUsage
	}
	if *u == "" || *p == "" {
		return "", "", errors.New("need -u and -p")
	}
	return *u, *p, nil
}

func cmdRegister(s *session, args []string) error {
	u, p, err := credentials("register", args)
	if err != nil {
		return err
	}
	out, err := s.api.register(s.ctx, u, p)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, out.Resource)
	return nil
}

func cmdLogin(s *session, args []string) error {
	u, p, err := credentials("login", args)
	if err != nil {
		return err
	}
	tv, err := s.api.login(s.ctx, u, p)
	if err != nil {
		return err
	}
	if err := saveToken(tv); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "ok")
	return nil
}

// timecardID parses -id and any extra flags registered by with.
func timecardID(name string, args []string, with func(fs *flag.FlagSet)) (string, *flag.FlagSet, error) {
	fs := subFlags(name)
	id := fs.String("id", "", "timecard id")
	if with != nil {
		with(fs)
	}
	if err := fs.Parse(args); err != nil {
		return "", nil, errUsage
	}
	if *id == "" {
		return "", nil, errors.New("need -id")
	}
	return *id, fs, nil
}

func cmdList(s *session, _ []string) error {
	out, err := s.api.list(s.ctx)
	if err != nil {
		return err
	}
	type row struct {
		ID      string    `json:"id"`
		Status  string    `json:"status"`
		Opened  time.Time `json:"opened"`
		Version int       `json:"recVersion"`
	}
	rows := make([]row, 0, len(out))
	for _, tc := range out {
		rows = append(rows, row{ID: tc.ID, Status: tc.Status, Opened: tc.Opened, Version: tc.RecVersion})
	}
	printJSON(s.out, rows)
	return nil
}

func cmdCreate(s *session, _ []string) error {
	out, err := s.api.create(s.ctx)
	if err != nil {
		return err
	}
	printJSON(s.out, out)
	return nil
}

func cmdGet(s *session, args []string) error {
	id, _, err := timecardID("get", args, nil)
	if err != nil {
		return err
	}
	out, err := s.api.get(s.ctx, id)
	if err != nil {
		return err
	}
	printJSON(s.out, out)
	return nil
}

func cmdRemove(s *session, args []string) error {
	id, _, err := timecardID("rm", args, nil)
	if err != nil {
		return err
	}
	if err := s.api.remove(s.ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "ok")
	return nil
}

func cmdLines(s *session, args []string) error {
	id, _, err := timecardID("lines", args, nil)
	if err != nil {
		return err
	}
	out, err := s.api.lines(s.ctx, id)
	if err != nil {
		return err
	}
	printJSON(s.out, out)
	return nil
}

// lineFlags holds the line fields shared by add-line, replace-line and update-line.
type lineFlags struct {
	week, year int
	day        string
	hours      float64
	project    string
	line       string
}

func (lf *lineFlags) register(fs *flag.FlagSet, withLine bool) {
	fs.IntVar(&lf.week, "week", 0, "ISO week")
	fs.IntVar(&lf.year, "year", 0, "ISO week-numbering year")
	fs.StringVar(&lf.day, "day", "", "weekday name or 0 (Sunday) to 6")
	fs.Float64Var(&lf.hours, "hours", 0, "hours worked")
	fs.StringVar(&lf.project, "project", "", "project")
	if withLine {
		fs.StringVar(&lf.line, "line", "", "line unique identifier")
	}
}

func (lf *lineFlags) request() (convert.LineRequest, error) {
	wd, err := convert.ParseDay(lf.day)
	if err != nil {
		return convert.LineRequest{}, err
	}
	return convert.LineRequest{Week: lf.week, Year: lf.year, Day: convert.Day(wd), Hours: lf.hours, Project: lf.project}, nil
}

// patch copies only the flags that were given on the command line.
func (lf *lineFlags) patch(fs *flag.FlagSet) (convert.LinePatch, error) {
	var (
		p   convert.LinePatch
		err error
	)
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "week":
			p.Week = &lf.week
		case "year":
			p.Year = &lf.year
		case "hours":
			p.Hours = &lf.hours
		case "project":
			p.Project = &lf.project
		case "day":
			wd, e := convert.ParseDay(lf.day)
			if e != nil {
				err = e
				return
			}
			d := convert.Day(wd)
			p.Day = &d
		}
	})
	return p, err
}

func checkLine(line string) error {
	if line == "" {
		return errors.New("need -line")
	}
	if _, err := uuid.FromString(line); err != nil {
		return fmt.Errorf("bad -line: %w", err)
	}
	return nil
}

func cmdAddLine(s *session, args []string) error {
	var lf lineFlags
	id, _, err := timecardID("add-line", args, func(fs *flag.FlagSet) { lf.register(fs, false) })
	if err != nil {
		return err
	}
	req, err := lf.request()
	if err != nil {
		return err
	}
	out, err := s.api.addLine(s.ctx, id, req)
	if err != nil {
		return err
	}
	printJSON(s.out, out)
	return nil
}

func cmdReplaceLine(s *session, args []string) error {
	var lf lineFlags
	id, _, err := timecardID("replace-line", args, func(fs *flag.FlagSet) { lf.register(fs, true) })
	if err != nil {
		return err
	}
	if err := checkLine(lf.line); err != nil {
		return err
	}
	req, err := lf.request()
	if err != nil {
		return err
	}
	out, err := s.api.replaceLine(s.ctx, id, lf.line, req)
	if err != nil {
		return err
	}
	printJSON(s.out, out)
	return nil
}

func cmdUpdateLine(s *session, args []string) error {
	var lf lineFlags
	id, fs, err := timecardID("update-line", args, func(fs *flag.FlagSet) { lf.register(fs, true) })
	if err != nil {
		return err
	}
	if err := checkLine(lf.line); err != nil {
		return err
	}
	p, err := lf.patch(fs)
	if err != nil {
		return err
	}
	out, err := s.api.updateLine(s.ctx, id, lf.line, p)
	if err != nil {
		return err
	}
	printJSON(s.out, out)
	return nil
}

func cmdTransitions(s *session, args []string) error {
	id, _, err := timecardID("transitions", args, nil)
	if err != nil {
		return err
	}
	out, err := s.api.transitions(s.ctx, id)
	if err != nil {
		return err
	}
	printJSON(s.out, out)
	return nil
}

func transitionCmd(rel string, withReason bool) func(*session, []string) error {
	return func(s *session, args []string) error {
		var reason string
		id, _, err := timecardID(rel, args, func(fs *flag.FlagSet) {
			if withReason {
				fs.StringVar(&reason, "reason", "", "free-text reason")
			}
		})
		if err != nil {
			return err
		}
		out, err := s.api.transition(s.ctx, id, rel, reason)
		if err != nil {
			return err
		}
		printJSON(s.out, out)
		return nil
	}
}

func cmdDocument(s *session, args []string) error {
	var rel string
	id, _, err := timecardID("doc", args, func(fs *flag.FlagSet) {
		fs.StringVar(&rel, "rel", "", "documentation relationship")
	})
	if err != nil {
		return err
	}
	if rel == "" {
		return errors.New("need -rel")
	}
	out, err := s.api.document(s.ctx, id, rel)
	if err != nil {
		return err
	}
	printJSON(s.out, out)
	return nil
}
