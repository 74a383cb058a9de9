package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/internal/workspace"
)

// NewShellCommand creates the shell command.
func NewShellCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive workspace shell",
		Long: `Start an interactive shell sharing one engine across commands. The shell
speaks the same verbs as the CLI, keeps the workspace open between them,
and only persists on save, so edits can be discarded with close.

A file watcher warns when another process rewrites the workspace file
while the shell holds unsaved changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			cc.autosave = false
			return runShell(cmd.Context(), cc)
		},
	}
	return cmd
}

// session is one interactive shell over a shared command context.
type session struct {
	cc      *CommandContext
	current string // base of the selected workspace, empty when detached

	mu       sync.Mutex
	lastSave time.Time
	watcher  *fsnotify.Watcher
	watched  string
}

func runShell(ctx context.Context, cc *CommandContext) error {
	s := &session{cc: cc}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.watch(ctx)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     shellHistoryFile(),
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cc.Renderer.Writer()
	_, _ = fmt.Fprintln(out, "Tephra shell. Type help for commands, exit to leave.")

	// Attach to the configured workspace when one is already there.
	if base, err := workspace.Resolve(cc.targetDir(nil)); err == nil {
		if _, statErr := os.Stat(filepath.Join(base, workspace.DataDirName, workspace.FileName)); statErr == nil {
			if runErr := runOpen(cc, base); runErr == nil {
				s.attach(base)
				rl.SetPrompt(s.prompt())
			}
		}
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if leave, _ := runExit(cc, false, s.confirmFunc(rl)); leave {
				break
			}
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		leave, err := s.dispatch(ctx, rl, line)
		if err != nil {
			_, _ = fmt.Fprintf(cc.Renderer.ErrWriter(), "Error: %v\n", err)
		}
		if leave {
			break
		}
		rl.SetPrompt(s.prompt())
	}
	return nil
}

func (s *session) prompt() string {
	if s.current == "" {
		return "tephra> "
	}
	return "tephra:" + filepath.Base(s.current) + "> "
}

// dispatch runs one shell line. It reports whether the shell should exit.
func (s *session) dispatch(ctx context.Context, rl *readline.Instance, line string) (bool, error) {
	tokens, err := splitLine(line)
	if err != nil {
		return false, err
	}
	if len(tokens) == 0 {
		return false, nil
	}
	verb, rest := tokens[0], tokens[1:]
	cc := s.cc

	switch verb {
	case "help":
		s.printHelp()
		return false, nil

	case "exit", "quit":
		rest, yes := popFlag(rest, "yes")
		if len(rest) > 0 {
			return false, fmt.Errorf("exit takes no arguments")
		}
		return runExit(cc, yes, s.confirmFunc(rl))

	case "init":
		rest, force := popFlag(rest, "force")
		rest, description, err := popFlagValue(rest, "description")
		if err != nil {
			return false, err
		}
		dir := s.dirArg(rest)
		if err := runInit(cc, dir, description, force); err != nil {
			return false, err
		}
		s.markSaved()
		base, err := workspace.Resolve(dir)
		if err == nil {
			s.attach(base)
		}
		return false, nil

	case "open":
		dir := s.dirArg(rest)
		if err := runOpen(cc, dir); err != nil {
			return false, err
		}
		if base, err := workspace.Resolve(dir); err == nil {
			s.attach(base)
		}
		return false, nil

	case "status":
		return false, runStatus(cc, s.dirArg(rest))

	case "list":
		return false, runList(cc, s.dirArg(rest))

	case "save":
		if err := runSave(cc, s.dirArg(rest)); err != nil {
			return false, err
		}
		s.markSaved()
		return false, nil

	case "close":
		dir := s.dirArg(rest)
		if err := runClose(cc, dir); err != nil {
			return false, err
		}
		s.detachIf(dir)
		return false, nil

	case "clean":
		if err := runClean(cc, s.dirArg(rest)); err != nil {
			return false, err
		}
		s.markSaved()
		return false, nil

	case "delete":
		dir := s.dirArg(rest)
		if err := runDelete(cc, dir); err != nil {
			return false, err
		}
		s.detachIf(dir)
		return false, nil

	case "source":
		rest, store, err := popFlagValue(rest, "store")
		if err != nil {
			return false, err
		}
		if len(rest) != 2 {
			return false, fmt.Errorf("usage: source <name> <ref> [--store <store>]")
		}
		return false, runSource(ctx, cc, s.dirArg(nil), rest[0], rest[1], store)

	case "add":
		if len(rest) < 2 {
			return false, fmt.Errorf("usage: add <name> <operation> [param=value ...]")
		}
		return false, runAddStep(cc, s.dirArg(nil), rest[0], rest[1], rest[2:])

	case "set":
		if len(rest) < 2 {
			return false, fmt.Errorf("usage: set <name> <operation> [param=value ...]")
		}
		return false, runSetStep(cc, s.dirArg(nil), rest[0], rest[1], rest[2:])

	case "remove":
		rest, force := popFlag(rest, "force")
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: remove <name> [--force]")
		}
		return false, runRemove(cc, s.dirArg(nil), rest[0], force)

	case "rename":
		if len(rest) != 2 {
			return false, fmt.Errorf("usage: rename <old> <new>")
		}
		return false, runRename(cc, s.dirArg(nil), rest[0], rest[1])

	case "print":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: print <name>")
		}
		return false, runPrint(ctx, cc, s.dirArg(nil), rest[0])

	case "export":
		rest, format, err := popFlagValue(rest, "format")
		if err != nil {
			return false, err
		}
		if len(rest) != 2 {
			return false, fmt.Errorf("usage: export <name> <file> [--format csv|json]")
		}
		return false, runExport(ctx, cc, s.dirArg(nil), rest[0], rest[1], format)

	case "ops":
		if len(rest) == 1 {
			return false, runOpDetail(cc, rest[0])
		}
		return false, runOps(cc)

	case "history":
		rest, limitStr, err := popFlagValue(rest, "limit")
		if err != nil {
			return false, err
		}
		limit := 10
		if limitStr != "" {
			limit, err = strconv.Atoi(limitStr)
			if err != nil {
				return false, fmt.Errorf("invalid limit %q", limitStr)
			}
		}
		return false, runHistory(cc, s.dirArg(rest), limit)

	default:
		return false, fmt.Errorf("unknown command %q (type help)", verb)
	}
}

// dirArg picks the workspace a verb acts on: explicit argument, the attached
// workspace, the configured default.
func (s *session) dirArg(rest []string) string {
	if len(rest) > 0 && rest[0] != "" {
		return rest[0]
	}
	if s.current != "" {
		return s.current
	}
	return s.cc.targetDir(nil)
}

func (s *session) attach(base string) {
	s.current = base
	s.watchBase(base)
}

func (s *session) detachIf(dir string) {
	base, err := workspace.Resolve(dir)
	if err != nil {
		return
	}
	if base == s.current {
		s.current = ""
		s.watchBase("")
	}
}

func (s *session) confirmFunc(rl *readline.Instance) func(string) bool {
	return func(prompt string) bool {
		rl.SetPrompt(prompt)
		defer rl.SetPrompt(s.prompt())
		line, err := rl.Readline()
		if err != nil {
			return false
		}
		line = strings.ToLower(strings.TrimSpace(line))
		return line == "y" || line == "yes"
	}
}

func (s *session) markSaved() {
	s.mu.Lock()
	s.lastSave = time.Now()
	s.mu.Unlock()
}

func (s *session) recentOwnSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSave) < 500*time.Millisecond
}

// watch warns when the workspace file changes under the session's feet,
// typically a second shell or the HTTP service saving over it.
func (s *session) watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.cc.Logger.Debug("file watcher unavailable", "error", err)
		return
	}
	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()
	defer func() { _ = watcher.Close() }()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(event.Name) != workspace.FileName {
				continue
			}
			if s.recentOwnSave() {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				s.cc.Renderer.Warning(workspace.FileName + " changed on disk outside this session")
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.cc.Logger.Debug("watcher error", "error", err)
		}
	}
}

// watchBase re-points the watcher at the data directory of base. The watch
// covers the directory because saves replace the file by rename.
func (s *session) watchBase(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return
	}
	if s.watched != "" {
		_ = s.watcher.Remove(s.watched)
		s.watched = ""
	}
	if base == "" {
		return
	}
	dir := filepath.Join(base, workspace.DataDirName)
	if err := s.watcher.Add(dir); err != nil {
		s.cc.Logger.Debug("cannot watch workspace directory", "dir", dir, "error", err)
		return
	}
	s.watched = dir
}

func (s *session) completer() *readline.PrefixCompleter {
	resources := readline.PcItemDynamic(s.resourceNames)
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("init"),
		readline.PcItem("open"),
		readline.PcItem("status"),
		readline.PcItem("list"),
		readline.PcItem("save"),
		readline.PcItem("close"),
		readline.PcItem("clean"),
		readline.PcItem("delete"),
		readline.PcItem("source"),
		readline.PcItem("add"),
		readline.PcItem("set", resources),
		readline.PcItem("remove", resources),
		readline.PcItem("rename", resources),
		readline.PcItem("print", resources),
		readline.PcItem("export", resources),
		readline.PcItem("ops", readline.PcItemDynamic(s.opNames)),
		readline.PcItem("history"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)
}

func (s *session) resourceNames(string) []string {
	if s.current == "" {
		return nil
	}
	w, err := s.cc.Manager.Get(s.current)
	if err != nil {
		return nil
	}
	nodes := w.Resources()
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return names
}

func (s *session) opNames(string) []string {
	sigs := s.cc.Ops.List()
	names := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		names = append(names, sig.Name)
	}
	return names
}

func (s *session) printHelp() {
	help := `
Commands:
  init [dir] [--description <text>] [--force]   Create a workspace
  open [dir]                                    Open and attach a workspace
  status / list                                 Inspect the attached workspace
  source <name> <ref> [--store <store>]         Add a catalog dataset
  add <name> <op> [param=value|param=@res ...]  Add a step
  set <name> <op> [param=value|param=@res ...]  Add or rebind a step
  remove <name> [--force]                       Remove a resource
  rename <old> <new>                            Rename a resource
  print <name>                                  Evaluate and show a resource
  export <name> <file> [--format csv|json]      Evaluate and write a resource
  ops [name]                                    List operations
  history [--limit <n>]                         Show evaluation runs
  save / close / clean / delete                 Workspace lifecycle
  exit [--yes]                                  Leave the shell

Tips:
  - Edits stay in memory until save; close discards them
  - Tab completion covers verbs, resources, and operations
`
	_, _ = fmt.Fprintln(s.cc.Renderer.Writer(), help)
}

func shellHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tephra_history"
	}
	return filepath.Join(home, ".tephra", "shell_history")
}
