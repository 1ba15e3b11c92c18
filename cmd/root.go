// Copyright © 2016 The Jet authors

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/swgillespie/jet/jet"
	"github.com/swgillespie/jet/lisplib"
	"github.com/swgillespie/jet/parser"
)

var (
	stdlibPath string
	warningsOn bool
	gcStress   bool
	heapVerify bool
)

// Environment lookups map flag names like stdlib-path to JET_STDLIB_PATH.
var envKeyReplacer = strings.NewReplacer("-", "_")

// rootCmd interprets a single source file: the prelude from the stdlib
// directory is loaded first, then the input file, then the process exits.
var rootCmd = &cobra.Command{
	Use:   "jet <file.jet>",
	Short: "Jet — a small Lisp with a precise moving collector",
	Long: `Jet is a small Lisp interpreter.  Programs are read as s-expressions,
compiled to a meaning tree with lexically addressed variables, and run on a
trampolined evaluator with proper tail calls.  All values live on a managed
heap collected by a semispace copying collector.

Getting started:
  jet -s ./lisplib program.jet     Run a program
  jet repl                         Start an interactive REPL

The stdlib directory must contain prelude.jet and can also be supplied via
the JET_STDLIB_PATH environment variable.`,
	Version:       jet.JetVersion,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFile(args[0])
	},
}

// Execute runs the root command.  Exit status is 0 on success and 1 on
// usage, read, or runtime errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&stdlibPath, "stdlib-path", "s", "",
		"Directory containing prelude.jet (required)")
	rootCmd.PersistentFlags().BoolVarP(&warningsOn, "warnings", "w", false,
		"Emit late-binding warnings when a symbol is auto-defined")
	rootCmd.PersistentFlags().BoolVar(&gcStress, "gc-stress", false,
		"Collect on every allocation (debug only)")
	rootCmd.PersistentFlags().BoolVar(&heapVerify, "heap-verify", false,
		"Verify the heap before and after each collection (debug only)")

	_ = viper.BindPFlag("stdlib-path", rootCmd.PersistentFlags().Lookup("stdlib-path"))
}

// initConfig lets the environment supply defaults for unset flags.
func initConfig() {
	viper.SetEnvPrefix("jet")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
}

func runtimeConfigs() []jet.Config {
	return []jet.Config{
		jet.WithWarnings(warningsOn),
		jet.WithGCStress(gcStress),
		jet.WithHeapVerify(heapVerify),
	}
}

func runFile(path string) error {
	stdlib := viper.GetString("stdlib-path")
	if stdlib == "" {
		return errors.New("no stdlib path, which is required for now (use -s or JET_STDLIB_PATH)")
	}

	rt := jet.NewRuntime(runtimeConfigs()...)
	defer rt.Close()
	rt.Reader = parser.NewReader(rt, rt.Stdin)

	if err := runSource(rt, filepath.Join(stdlib, lisplib.PreludeFileName)); err != nil {
		return err
	}
	return runSource(rt, path)
}

func runSource(rt *jet.Runtime, path string) error {
	f, err := os.Open(path) //#nosec G304
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // read-only file

	if _, err := rt.RunForms(parser.NewReader(rt, f)); err != nil {
		var readErr *parser.ReadError
		if errors.As(err, &readErr) {
			return fmt.Errorf("read error: %s", readErr.Msg)
		}
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}
