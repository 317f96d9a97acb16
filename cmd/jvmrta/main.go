// Command jvmrta runs Rapid Type Analysis and class-flow analysis over
// a JVM classpath, printing a callgraph or a points-to result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/vantage-dev/jvmrta/internal/entrypoints"
	"github.com/vantage-dev/jvmrta/internal/nativestubs"
	"github.com/vantage-dev/jvmrta/internal/program"
	"github.com/vantage-dev/jvmrta/internal/suppress"
	"github.com/vantage-dev/jvmrta/pkg/absint"
	"github.com/vantage-dev/jvmrta/pkg/classfile"
	"github.com/vantage-dev/jvmrta/pkg/classpath"
	"github.com/vantage-dev/jvmrta/pkg/descriptor"
	"github.com/vantage-dev/jvmrta/pkg/ir"
	"github.com/vantage-dev/jvmrta/pkg/rta"
	"github.com/vantage-dev/jvmrta/pkg/ssaform"
	"github.com/vantage-dev/jvmrta/pkg/transform"
)

// Config holds all command-line configuration shared by every subcommand.
type Config struct {
	Classpath    string
	Entries      []string
	StubsPath    string
	ParseNatives bool
	Suppress     []string
	JSON         bool
	Verbose      bool
	Profile      bool
}

const (
	exitError = 2
)

var (
	version = "dev"
	cfg     Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:                "jvmrta",
		Short:              "Rapid Type Analysis and class-flow analysis over JVM bytecode",
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}
	rootCmd.PersistentFlags().StringVar(&cfg.Classpath, "classpath", ".", "Classpath to analyze (directories and jars, ':'-separated)")
	rootCmd.PersistentFlags().StringArrayVar(&cfg.Entries, "entry", nil, "Additional entry point, class#name(desc), repeatable")
	rootCmd.PersistentFlags().StringVar(&cfg.StubsPath, "stubs", "", "Path to a native-method stub YAML file")
	rootCmd.PersistentFlags().BoolVar(&cfg.ParseNatives, "parse-natives", false, "Consume native-method stubs during RTA")
	rootCmd.PersistentFlags().StringArrayVar(&cfg.Suppress, "suppress", nil, "Suppress a finding, class#name(desc) [reason...], repeatable")
	rootCmd.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof/mem.prof)")

	rootCmd.AddCommand(analyzeCmd(), callgraphCmd(), classflowCmd())

	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(exitError)
	}
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run RTA and print the set of reachable methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cp, checker, err := runRTAWithSuppress(cmd.Context())
			if err != nil {
				return err
			}
			defer cp.Close()

			var out []rta.MethodKey
			for _, m := range p.Reachable() {
				if _, ok := checker.IsSuppressed(m, lookupMethodInfo(cp, m)); ok {
					continue
				}
				out = append(out, m)
			}
			if cfg.JSON {
				return printJSON(out)
			}
			for _, m := range out {
				fmt.Println(m.String())
			}
			return nil
		},
	}
}

func callgraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callgraph",
		Short: "Run RTA and print the resolved call-graph edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cp, checker, err := runRTAWithSuppress(cmd.Context())
			if err != nil {
				return err
			}
			defer cp.Close()

			var out []rta.Edge
			for _, e := range p.CallgraphEdges() {
				if _, ok := checker.IsSuppressed(e.To, lookupMethodInfo(cp, e.To)); ok {
					continue
				}
				out = append(out, e)
			}
			if cfg.JSON {
				return printJSON(out)
			}
			for _, e := range out {
				fmt.Printf("%s -> %s\n", e.From.String(), e.To.String())
			}
			return nil
		},
	}
}

// runRTAWithSuppress is analyze/callgraph's shared path: run RTA, keep
// the classpath open (the caller needs it to resolve a suppressed
// method's AccSynthetic flag), and load the --suppress allow-list.
func runRTAWithSuppress(ctx context.Context) (*program.Program, *classpath.ClassPath, *suppress.Checker, error) {
	p, cp, _, err := buildAnalysis(ctx)
	if err != nil {
		if cp != nil {
			cp.Close()
		}
		return nil, nil, nil, err
	}
	checker := suppress.NewChecker()
	if err := checker.Load(cfg.Suppress); err != nil {
		cp.Close()
		return nil, nil, nil, err
	}
	return p, cp, checker, nil
}

// lookupMethodInfo resolves key's classfile.MethodInfo for the
// suppression checker's AccSynthetic rule, returning nil if the class or
// method can't be loaded (IsSuppressed then falls back to the allow-list
// only).
func lookupMethodInfo(cp *classpath.ClassPath, key rta.MethodKey) *classfile.MethodInfo {
	node, err := cp.EnsureNode(key.Class)
	if err != nil {
		return nil
	}
	return node.MethodByNameDesc(key.Name, key.Desc)
}

func classflowCmd() *cobra.Command {
	var entry, varName string
	cmd := &cobra.Command{
		Use:   "classflow",
		Short: "Run the class-flow (points-to) analysis and print one variable's result",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cp, in, err := buildAnalysis(cmd.Context())
			if err != nil {
				return err
			}
			defer cp.Close()

			entryKey, err := entrypoints.Parse(entry)
			if err != nil {
				return err
			}

			lookup := methodLookupFor(cp, in)
			solver := absint.NewSolver(p.Hierarchy, p.RTA, lookup, nil, slog.Default())
			result := solver.Run(entryKey, absint.EmptyLocals())

			m, ok := lookup(entryKey)
			if !ok {
				return fmt.Errorf("classflow: entry method %s not found", entry)
			}
			idx, err := findVarIndex(m, varName)
			if err != nil {
				return err
			}
			cfg := ssaform.BuildCFG(m)
			lastBlock := len(cfg) - 1
			exit := result.BlockExit(entryKey, lastBlock)
			fmt.Println(describeAbVSet(exit.Get(idx)))
			return nil
		},
	}
	cmd.Flags().StringVar(&entry, "entry", "", "Method to analyze, class#name(desc)")
	cmd.Flags().StringVar(&varName, "var", "", "Local variable slot, by debug name (OriginLocal)")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("var")
	return cmd
}

func findVarIndex(m *ir.Method, name string) (int, error) {
	for _, v := range m.Vars {
		if v.Origin.Kind == ir.OriginLocal && v.Origin.DebugName == name {
			return v.Index, nil
		}
	}
	return 0, fmt.Errorf("classflow: no local variable named %q", name)
}

func describeAbVSet(v absint.AbVSet) string {
	switch {
	case v.IsBot():
		return "bot (unreached)"
	case v.IsTop():
		return "top (unknown)"
	case v.IsPrimitive():
		return "primitive"
	default:
		return fmt.Sprintf("%v", v.Concretize())
	}
}

func buildAnalysis(_ context.Context) (*program.Program, *classpath.ClassPath, *descriptor.Interner, error) {
	logger := slog.Default()

	cp, err := classpath.Open(cfg.Classpath, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening classpath: %w", err)
	}

	entries := append([]rta.MethodKey{}, entrypoints.Default...)
	for _, raw := range cfg.Entries {
		entries, err = entrypoints.Append(entries, raw)
		if err != nil {
			return nil, cp, nil, err
		}
	}

	opts := rta.Options{ParseNatives: cfg.ParseNatives, Logger: logger}
	if cfg.StubsPath != "" {
		stubs, err := nativestubs.Load(cfg.StubsPath)
		if err != nil {
			return nil, cp, nil, err
		}
		opts.Stubs = stubs
	}

	in := descriptor.NewInterner()
	res, err := rta.Run(cp, in, entries, opts)
	if err != nil {
		return nil, cp, in, fmt.Errorf("running rta: %w", err)
	}

	return program.New(cp.Hierarchy(), in, res), cp, in, nil
}

// methodLookupFor adapts a live classpath into the absint.MethodLookup
// a Solver needs: load, transform, and SSA-convert a method's IR the
// first time it's asked for.
func methodLookupFor(cp *classpath.ClassPath, in *descriptor.Interner) absint.MethodLookup {
	cache := map[rta.MethodKey]*ir.Method{}
	return func(key rta.MethodKey) (*ir.Method, bool) {
		if m, ok := cache[key]; ok {
			return m, true
		}
		node, err := cp.EnsureNode(key.Class)
		if err != nil {
			return nil, false
		}
		mi := node.MethodByNameDesc(key.Name, key.Desc)
		if mi == nil || mi.Code == nil {
			return nil, false
		}
		cf, err := cp.Load(key.Class)
		if err != nil {
			return nil, false
		}
		m, err := transform.Transform(key.Class, mi, cf.ConstantPool, in, transform.Options{})
		if err != nil {
			return nil, false
		}
		if err := ssaform.Convert(m); err != nil {
			return nil, false
		}
		cache[key] = m
		return m, true
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	}
	if !cfg.Profile {
		return nil
	}
	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting cpu profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	defer cpuProfile.Close()

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}
