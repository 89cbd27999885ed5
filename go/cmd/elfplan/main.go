// Command elfplan parses an ELF image, prints what it finds and the load
// plan a memory manager would follow, and optionally saves that plan.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
	"gopkg.in/yaml.v3"

	elfcore "github.com/lunixbochs/elfcore/go/elf"
	"github.com/lunixbochs/elfcore/go/loader"
	"github.com/lunixbochs/elfcore/go/minidebug"
	"github.com/lunixbochs/elfcore/go/models"
	"github.com/lunixbochs/elfcore/go/planfile"
)

var reports = []string{"header", "segments", "plan", "sections", "symbols", "relocs", "dynamic", "notes"}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// printError prints err, and a stacktrace if available.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(w, "Error: %s\n", err)
	var st stackTracer
	if !errors.As(err, &st) {
		return
	}
	var frames [][2]string
	width := 0
	for _, f := range st.StackTrace() {
		fileline := fmt.Sprintf("%s:%d", f, f)
		method := fmt.Sprintf("%n", f)
		frames = append(frames, [2]string{fileline, method})
		if len(fileline) > width {
			width = len(fileline)
		}
		if method == "main" {
			break
		}
	}
	for _, f := range frames {
		fmt.Fprintf(w, "%s%s | %s()\n", f[0], strings.Repeat(" ", width-len(f[0])), f[1])
	}
}

// loadConfig fills cfg from the first config.yaml found in the user's
// config folders. A missing file is not an error.
var loadConfig = func(cfg *models.Config) error {
	configDirs := configdir.New("elfcore", "elfplan")
	folder := configDirs.QueryFolderContainsFile("config.yaml")
	if folder == nil {
		return nil
	}
	data, err := folder.ReadFile("config.yaml")
	if err != nil {
		return errors.Wrap(err, "failed to read config.yaml")
	}
	return errors.Wrap(yaml.Unmarshal(data, cfg), "failed to parse config.yaml")
}

type hexFlag struct {
	v *uint64
}

func (h hexFlag) String() string {
	if h.v == nil {
		return "0"
	}
	return fmt.Sprintf("0x%x", *h.v)
}

func (h hexFlag) Set(s string) error {
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return err
	}
	*h.v = n
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg := &models.Config{Color: isTerminal(stdout)}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(stderr))
	if err := loadConfig(cfg); err != nil {
		level.Warn(logger).Log("msg", "ignoring config", "err", err)
	}

	fs := flag.NewFlagSet("elfplan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Var(hexFlag{&cfg.Base}, "base", "load bias for position-independent (ET_DYN) images")
	fs.BoolVar(&cfg.Color, "color", cfg.Color, "colorize output")
	fs.BoolVar(&cfg.Demangle, "demangle", cfg.Demangle, "demangle C++ and Rust symbol names")
	fs.BoolVar(&cfg.MiniDebug, "minidebug", cfg.MiniDebug, "also read symbols from the .gnu_debugdata section")
	fs.BoolVar(&cfg.RequireEntry, "require-entry", cfg.RequireEntry, "fail if the entry point is not in an executable segment")
	fs.BoolVar(&cfg.SkipEmpty, "skip-empty", cfg.SkipEmpty, "drop PT_LOAD entries with no memory size")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose logging")
	show := fs.String("show", strings.Join(cfg.Show, ","), "comma separated reports to print ("+strings.Join(reports, ", ")+", all)")
	out := fs.String("o", "", "write the load plan to this file")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: elfplan [options] <image>\n\n")
		var flags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) { flags = append(flags, f) })
		models.PrintFlags(stderr, flags)
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	cfg.Show = nil
	if *show != "" {
		cfg.Show = strings.Split(*show, ",")
	}
	if !cfg.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	path := fs.Arg(0)
	if err := inspect(path, *out, cfg, stdout, logger); err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

func inspect(path, out string, cfg *models.Config, w io.Writer, logger log.Logger) error {
	plan, err := loader.LoadFile(path, loader.Options{Base: models.VirtAddr(cfg.Base), SkipEmpty: cfg.SkipEmpty})
	if err != nil {
		return err
	}
	f := plan.File
	level.Debug(logger).Log("msg", "computed plan", "size", len(f.Bytes()), "segments", len(plan.Segments()), "entry", plan.Entry())
	if !plan.EntryMapped() {
		if cfg.RequireEntry {
			return errors.Errorf("entry point %s is not in an executable segment", plan.Entry())
		}
		level.Warn(logger).Log("msg", "entry point is not in an executable segment", "entry", plan.Entry())
	}

	syms, err := plan.Symbols()
	if err != nil {
		level.Warn(logger).Log("msg", "failed to read symbols", "err", err)
	}
	if cfg.MiniDebug {
		syms = append(syms, miniDebugSymbols(f, plan.Bias(), logger)...)
	}

	r := &report{w: w, cfg: cfg, f: f, plan: plan, syms: syms}
	if err := r.print(); err != nil {
		return err
	}

	if out != "" {
		fd, err := os.Create(out)
		if err != nil {
			return errors.Wrap(err, "failed to create plan file")
		}
		if err := planfile.Write(fd, plan); err != nil {
			fd.Close()
			return err
		}
		if err := fd.Close(); err != nil {
			return errors.Wrap(err, "failed to write plan file")
		}
		level.Info(logger).Log("msg", "wrote plan", "path", out, "segments", len(plan.Segments()))
	}
	return nil
}

func miniDebugSymbols(f elfcore.File, bias uint64, logger log.Logger) []models.Symbol {
	inner, err := minidebug.Open(f)
	if err != nil {
		if errors.Is(err, minidebug.ErrNoMiniDebugInfo) {
			level.Debug(logger).Log("msg", "no minidebuginfo")
		} else {
			level.Warn(logger).Log("msg", "failed to read minidebuginfo", "err", err)
		}
		return nil
	}
	// the embedded image has no PT_LOAD headers of its own
	syms, err := loader.Symbols(inner, bias)
	if err != nil {
		level.Warn(logger).Log("msg", "failed to read minidebuginfo symbols", "err", err)
	}
	level.Debug(logger).Log("msg", "read minidebuginfo", "symbols", len(syms))
	return syms
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
