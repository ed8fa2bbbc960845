package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/choraleia/xide/pkg/config"
	"github.com/choraleia/xide/pkg/db"
	"github.com/choraleia/xide/pkg/event"
	"github.com/choraleia/xide/pkg/service"
	"github.com/choraleia/xide/pkg/utils"
	"github.com/choraleia/xide/pkg/vfs"
	"gorm.io/gorm"
)

// lineInput is the shell's stdin. It also answers the directory picker and
// the path prompt, so a folder selection reads the next line.
type lineInput struct {
	r   *bufio.Reader
	out io.Writer
}

func (in *lineInput) readLine(prompt string) (string, error) {
	fmt.Fprint(in.out, prompt)
	line, err := in.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (in *lineInput) PickDirectory(ctx context.Context) (string, error) {
	p, err := in.readLine("Folder path: ")
	if err != nil || strings.TrimSpace(p) == "" {
		return "", vfs.ErrPickerCancelled
	}
	return strings.TrimSpace(p), nil
}

func (in *lineInput) PromptPath(ctx context.Context, message, defaultPath string) (string, error) {
	prompt := message + ": "
	if defaultPath != "" {
		prompt = fmt.Sprintf("%s [%s]: ", message, defaultPath)
	}
	p, err := in.readLine(prompt)
	if err != nil {
		return "", vfs.ErrPromptCancelled
	}
	if p = strings.TrimSpace(p); p == "" {
		p = defaultPath
	}
	return p, nil
}

func (in *lineInput) Confirm(ctx context.Context, message string) (bool, error) {
	answer, err := in.readLine(message + " [y/N]: ")
	if err != nil {
		return false, vfs.ErrPromptCancelled
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// recentStore records recents under whichever backend is active.
type recentStore struct {
	gdb    *gorm.DB
	facade func() *vfs.Facade
}

func (r recentStore) service() *service.RecentService {
	return service.NewRecentService(r.gdb, string(r.facade().Active()))
}

func (r recentStore) RecordFile(ctx context.Context, p string) error {
	return r.service().RecordFile(ctx, p)
}

func (r recentStore) RecordFolder(ctx context.Context, label string) error {
	return r.service().RecordFolder(ctx, label)
}

type shell struct {
	in      *lineInput
	out     io.Writer
	logger  *slog.Logger
	emitter *event.Emitter
	facade  *vfs.Facade
	tree    *vfs.Tree
	remote  *vfs.RemoteAdapter
	local   *vfs.LocalAdapter
	recents *service.RecentService
	cwd     string
}

func newShell(cfg *config.AppConfig, r io.Reader, w io.Writer, gdb *gorm.DB) *shell {
	logger := utils.GetLogger()
	in := &lineInput{r: bufio.NewReader(r), out: w}
	emitter := event.NewEmitter()

	client := vfs.NewRemoteClient(vfs.RemoteClientConfig{
		BaseURL:        cfg.RemoteBaseURL(),
		Timeout:        cfg.RequestTimeout(),
		ReconnectDelay: cfg.WatchReconnectDelay(),
	}, logger)
	remote := vfs.NewRemoteAdapter(client, in, cfg.Remote.DefaultWorkingDirectory, logger)
	env := vfs.HostEnvironment{Picker: in}
	local := vfs.NewLocalAdapter(in, env, logger)

	sh := &shell{
		in:      in,
		out:     w,
		logger:  logger,
		emitter: emitter,
		remote:  remote,
		local:   local,
		cwd:     vfs.Root,
	}
	opts := vfs.Options{
		Local:       local,
		Remote:      remote,
		Environment: env,
		Override:    vfs.ParseBackend(strings.ToLower(cfg.Client.BackendOverride)),
		Events:      emitter,
		Logger:      logger,
	}
	if gdb != nil {
		opts.Recent = recentStore{gdb: gdb, facade: func() *vfs.Facade { return sh.facade }}
		sh.recents = service.NewRecentService(gdb, "")
	}
	sh.facade = vfs.NewFacade(opts)
	sh.tree = vfs.NewTree(sh.facade)
	sh.tree.Follow(emitter)

	emitter.On(event.DirectoryChanged, func(ev event.Event) {
		if dc, ok := ev.(event.DirectoryChangedEvent); ok && dc.Change != "" {
			fmt.Fprintf(w, "\n[%s] %s %s\n", dc.Backend, dc.Change, dc.Target)
		}
	})
	emitter.On(event.BackendSwitched, func(ev event.Event) {
		if bs, ok := ev.(event.BackendSwitchedEvent); ok {
			fmt.Fprintf(w, "backend: %s -> %s (%s)\n", bs.From, bs.To, bs.Reason)
		}
	})
	return sh
}

func runShell(ctx context.Context, cfg *config.AppConfig, r io.Reader, w io.Writer) error {
	var gdb *gorm.DB
	if dbPath, err := cfg.DatabasePath(); err == nil {
		if gdb, err = db.Open(dbPath); err != nil {
			utils.GetLogger().Warn("Recent store unavailable", "path", dbPath, "error", err)
			gdb = nil
		}
	}
	sh := newShell(cfg, r, w, gdb)
	fmt.Fprintf(w, "xide shell (backend: %s). Type 'help' for commands.\n", sh.facade.Active())
	return sh.loop(ctx)
}

func (s *shell) loop(ctx context.Context) error {
	for ctx.Err() == nil {
		line, err := s.in.readLine(s.prompt())
		if err == io.EOF {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return err
		}
		if quit := s.exec(ctx, line); quit {
			return nil
		}
	}
	return nil
}

func (s *shell) prompt() string {
	sess := s.facade.Session()
	if sess == nil {
		return fmt.Sprintf("(%s) > ", s.facade.Active())
	}
	return fmt.Sprintf("(%s) %s:%s > ", sess.Backend, sess.Label, s.cwd)
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		s.help()
	case "quit", "exit":
		return true
	case "status":
		s.status()
	case "open":
		s.open(ctx)
	case "switch":
		if !s.need(args, 1, "switch <local|remote>") {
			break
		}
		tag := vfs.ParseBackend(args[0])
		if tag == "" {
			fmt.Fprintf(s.out, "unknown backend %q\n", args[0])
			break
		}
		if s.report(s.facade.SwitchBackend(tag)) {
			s.cwd = vfs.Root
		}
	case "ls":
		dir := s.cwd
		if len(args) > 0 {
			dir = s.abs(args[0])
		}
		res := s.tree.Refresh(ctx, dir)
		if s.report(res) {
			for _, e := range res.Payload {
				s.printEntry(e, 0)
			}
		}
	case "tree":
		if !s.tree.Cached(vfs.Root) {
			if res := s.tree.Expand(ctx, vfs.Root); !s.report(res) {
				break
			}
		}
		for _, row := range s.tree.Rows() {
			s.printEntry(row.Entry, row.Depth)
		}
	case "expand":
		if s.need(args, 1, "expand <dir>") {
			s.report(s.tree.Expand(ctx, s.abs(args[0])))
		}
	case "collapse":
		if s.need(args, 1, "collapse <dir>") {
			s.tree.Collapse(s.abs(args[0]))
		}
	case "cd":
		dir := vfs.Root
		if len(args) > 0 {
			dir = s.abs(args[0])
		}
		if res := s.facade.List(ctx, dir); s.report(res) {
			s.cwd = dir
		}
	case "pwd":
		fmt.Fprintln(s.out, s.cwd)
	case "cat":
		if !s.need(args, 1, "cat <file>") {
			break
		}
		if res := s.facade.OpenFile(ctx, s.abs(args[0])); s.report(res) {
			fmt.Fprintln(s.out, res.Payload)
		}
	case "write":
		if !s.need(args, 1, "write <file> <content>") {
			break
		}
		content := strings.Join(args[1:], " ")
		s.report(s.facade.Save(ctx, s.abs(args[0]), content))
	case "touch":
		if s.need(args, 1, "touch <name>") {
			s.report(s.facade.CreateFile(ctx, s.cwd, args[0]))
		}
	case "mkdir":
		if s.need(args, 1, "mkdir <name>") {
			s.report(s.facade.CreateDirectory(ctx, s.cwd, args[0]))
		}
	case "rm":
		if s.need(args, 1, "rm <path>") {
			s.report(s.facade.Delete(ctx, s.abs(args[0])))
		}
	case "mv":
		if s.need(args, 2, "mv <path> <target-dir>") {
			s.report(s.facade.Move(ctx, s.abs(args[0]), s.abs(args[1])))
		}
	case "cp":
		if s.need(args, 2, "cp <path> <destination>") {
			s.report(s.facade.Copy(ctx, s.abs(args[0]), s.abs(args[1])))
		}
	case "rename":
		if s.need(args, 2, "rename <path> <new-name>") {
			s.report(s.facade.Rename(ctx, s.abs(args[0]), args[1]))
		}
	case "watch":
		dir := s.cwd
		if len(args) > 0 {
			dir = s.abs(args[0])
		}
		if s.report(s.facade.Watch(ctx, dir)) {
			fmt.Fprintf(s.out, "watching %s\n", dir)
		}
	case "grep":
		s.grep(ctx, args)
	case "run":
		if s.need(args, 1, "run <command>") {
			s.run(ctx, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "run")))
		}
	case "recent":
		s.recent(ctx)
	default:
		fmt.Fprintf(s.out, "unknown command %q, type 'help'\n", cmd)
	}
	return false
}

// grep searches file contents below a directory. Flags precede the pattern:
// -c case-sensitive, -e regular expression, -w whole word.
func (s *shell) grep(ctx context.Context, args []string) {
	var opts vfs.SearchOptions
	for len(args) > 0 && strings.HasPrefix(args[0], "-") && len(args[0]) > 1 {
		for _, c := range args[0][1:] {
			switch c {
			case 'c':
				opts.CaseSensitive = true
			case 'e':
				opts.Regex = true
			case 'w':
				opts.WholeWord = true
			default:
				fmt.Fprintf(s.out, "unknown grep flag -%c\n", c)
				return
			}
		}
		args = args[1:]
	}
	if !s.need(args, 1, "grep [-c] [-e] [-w] <pattern> [dir]") {
		return
	}
	dir := s.cwd
	if len(args) > 1 {
		dir = s.abs(args[1])
	}
	res := s.facade.Search(ctx, dir, args[0], opts)
	if !s.report(res) {
		return
	}
	for _, m := range res.Payload {
		fmt.Fprintf(s.out, "%s:%d:%d: %s\n", m.Path, m.Line, m.Column, m.Text)
	}
	fmt.Fprintf(s.out, "%d match(es)\n", len(res.Payload))
}

func (s *shell) open(ctx context.Context) {
	res := s.facade.SelectRoot(ctx)
	if !s.report(res) {
		return
	}
	s.cwd = vfs.Root
	fmt.Fprintf(s.out, "opened %s (%s)\n", res.Payload.Label, res.Backend)
	if list := s.tree.Expand(ctx, vfs.Root); s.report(list) {
		for _, e := range list.Payload {
			s.printEntry(e, 0)
		}
	}
}

func (s *shell) status() {
	fmt.Fprintf(s.out, "backend: %s\n", s.facade.Active())
	if sess := s.facade.Session(); sess != nil {
		fmt.Fprintf(s.out, "folder:  %s (%s)\n", sess.Label, sess.BasePath)
		fmt.Fprintf(s.out, "cwd:     %s\n", s.cwd)
	} else {
		fmt.Fprintln(s.out, "folder:  none (use 'open')")
	}
	fmt.Fprintf(s.out, "service: %s\n", s.remote.Client().BaseURL())
}

// run executes a command on the companion service host. The working
// directory follows the shell's cwd when the session is remote.
func (s *shell) run(ctx context.Context, command string) {
	cwd := ""
	if sess := s.facade.Session(); sess != nil && sess.Backend == vfs.BackendRemote {
		cwd = vfs.HostJoin(sess.BasePath, s.cwd)
	}
	resp, err := s.remote.Client().Execute(ctx, command, cwd)
	if err != nil {
		s.printError(err)
		return
	}
	if resp.Stdout != "" {
		fmt.Fprint(s.out, resp.Stdout)
	}
	if resp.Stderr != "" {
		fmt.Fprint(s.out, resp.Stderr)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "command failed"
		}
		fmt.Fprintf(s.out, "error: %s (exit %d)\n", msg, resp.ExitCode)
	}
}

func (s *shell) recent(ctx context.Context) {
	if s.recents == nil {
		fmt.Fprintln(s.out, "recent files are not available")
		return
	}
	folder, err := s.recents.Folder(ctx)
	if err != nil {
		s.printError(err)
		return
	}
	files, err := s.recents.Files(ctx)
	if err != nil {
		s.printError(err)
		return
	}
	if folder != "" {
		fmt.Fprintf(s.out, "folder: %s\n", folder)
	}
	for _, f := range files {
		fmt.Fprintln(s.out, f)
	}
}

func (s *shell) abs(p string) string {
	if strings.HasPrefix(p, "/") {
		return vfs.Clean(p)
	}
	return vfs.Join(s.cwd, p)
}

func (s *shell) need(args []string, n int, usage string) bool {
	if len(args) < n {
		fmt.Fprintf(s.out, "usage: %s\n", usage)
		return false
	}
	return true
}

func (s *shell) printEntry(e vfs.Entry, depth int) {
	indent := strings.Repeat("  ", depth)
	if e.IsDir() {
		fmt.Fprintf(s.out, "%s%s/\n", indent, e.Name)
		return
	}
	fmt.Fprintf(s.out, "%s%s\t%d\n", indent, e.Name, e.Size)
}

// resultStatus is satisfied by every vfs.Result instantiation.
type resultStatus interface {
	Err() error
}

// report prints a failed result with its recovery solutions and reports
// whether it succeeded.
func (s *shell) report(res resultStatus) bool {
	err := res.Err()
	if err == nil {
		return true
	}
	s.printError(err)
	return false
}

func (s *shell) printError(err error) {
	fmt.Fprintf(s.out, "error [%s]: %v\n", vfs.KindOf(err), err)
	var ve *vfs.Error
	if errors.As(err, &ve) {
		for _, sol := range ve.Solutions {
			fmt.Fprintf(s.out, "  - %s\n", sol)
		}
	}
}

func (s *shell) help() {
	fmt.Fprintln(s.out, `Commands:
  open                      Select the working folder
  switch <local|remote>     Change backend (ends the session)
  status                    Show backend and folder
  ls [dir]                  List a directory
  tree                      Show the expanded tree
  expand <dir>              Expand a directory in the tree
  collapse <dir>            Collapse a directory in the tree
  cd <dir> / pwd            Change / show the current directory
  cat <file>                Open a file
  write <file> <content>    Save content to an existing file
  touch <name>              Create an empty file in the current directory
  mkdir <name>              Create a directory in the current directory
  rm <path>                 Delete a file or directory
  mv <path> <target-dir>    Move into a directory
  cp <path> <destination>   Copy a file or directory
  rename <path> <new-name>  Rename in place
  watch [dir]               Print changes below a directory
  grep [-c] [-e] [-w] <pattern> [dir]
                            Search file contents (case-sensitive, regex, word)
  run <command>             Run a command on the file service host
  recent                    Show recent files and folder
  quit                      Exit`)
}
