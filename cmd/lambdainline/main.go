package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/daimatz/lambdainline/pkg/classindex"
	"github.com/daimatz/lambdainline/pkg/config"
)

var log = commonlog.GetLogger("lambdainline")

func findJmodPath() string {
	// 1. Explicit env var
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	// 2. JAVA_HOME
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "jmods", "java.base.jmod")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	// 3. Glob fallback
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}

const (
	inspectUsage = "inspect <lambda-class>"
	inlineUsage  = "inline <owner> <function$default>"
	runUsage     = "run <class>"
	smapUsage    = "smap <class>"
	wrapUsage    = "wrap <guest-interface>"
)

type command struct {
	usage string
	run   func(t *tool, args []string) error
}

var commands = map[string]command{
	"inspect": {inspectUsage, (*tool).inspectCmd},
	"inline":  {inlineUsage, (*tool).inlineCmd},
	"run":     {runUsage, (*tool).runCmd},
	"smap":    {smapUsage, (*tool).smapCmd},
	"wrap":    {wrapUsage, (*tool).wrapCmd},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: lambdainline [flags] <command> [args]\n\nCommands:\n")
	for _, name := range []string{"inspect", "inline", "run", "smap", "wrap"} {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	verbose := flag.Int("v", -1, "Log verbosity (overrides the config file)")
	configDir := flag.String("config", ".", "Directory holding "+config.FileName)
	cp := flag.String("cp", "", "Classpath entries, separated by "+string(os.PathListSeparator))
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	verbosity := cfg.Log.Verbosity
	if *verbose >= 0 {
		verbosity = *verbose
	}
	var logPath *string
	if cfg.Log.File != "" {
		logPath = &cfg.Log.File
	}
	commonlog.Configure(verbosity, logPath)

	t := newTool(cfg, *cp)
	if err := cmd.run(t, flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	hits, misses := t.cache.Stats()
	log.Infof("class cache: %d hits, %d misses", hits, misses)
}

// tool holds what every command shares.
type tool struct {
	cfg     *config.Config
	classes classindex.Index
	cache   *classindex.Cached
	color   bool
}

func newTool(cfg *config.Config, cp string) *tool {
	var entries []string
	if cp != "" {
		entries = append(entries, strings.Split(cp, string(os.PathListSeparator))...)
	}
	entries = append(entries, cfg.ClasspathEntries()...)
	if jmod := findJmodPath(); jmod != "" {
		entries = append(entries, jmod)
	} else {
		log.Warning("could not find java.base.jmod; set JAVA_HOME or JAVA_BASE_JMOD")
	}
	log.Debugf("classpath: %s", strings.Join(entries, string(os.PathListSeparator)))

	cache := classindex.NewCached(classindex.FromClasspath(entries), cfg.Cache.Classes)
	return &tool{
		cfg:     cfg,
		classes: cache,
		cache:   cache,
		color:   isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
}

// heading prints a section title, bold on a terminal.
func (t *tool) heading(format string, args ...interface{}) {
	s := fmt.Sprintf(format, args...)
	if t.color {
		s = "\033[1m" + s + "\033[0m"
	}
	fmt.Println(s)
}

func classArg(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: lambdainline %s", usage)
	}
	return nil
}

// internalName accepts both "pkg/Cls" and "pkg.Cls".
func internalName(s string) string {
	s = strings.TrimSuffix(s, ".class")
	if strings.Contains(s, "/") {
		return s
	}
	return strings.ReplaceAll(s, ".", "/")
}
