package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/fatih/color"

	"github.com/riverfog7/ZiPatchClient/internal"
)

// Define command structs
type ApplyCmd struct {
	Source            string `arg:"positional,required" help:"Patch file path or http(s) URL"`
	Target            string `arg:"positional,required" help:"Game installation directory"`
	Verbose           bool   `arg:"-v,--verbose" help:"Log every chunk as it is applied"`
	IgnoreMissing     bool   `arg:"--ignore-missing" help:"Tolerate files and directories the patch expects but that are missing"`
	IgnoreOldMismatch bool   `arg:"--ignore-old-mismatch" help:"Tolerate existing files that do not match what the patch expects"`
	Verify            bool   `arg:"--verify" help:"Stop on the first chunk checksum mismatch"`
	Platform          string `arg:"--platform" help:"Platform to use until the patch names one (win32, ps3, ps4)"`
	DownloadTo        string `arg:"--download-to" help:"Save a remote patch to this file first, resuming a partial download"`
	LimitRate         string `arg:"--limit-rate" help:"Cap the download speed of a remote patch, e.g. 5MB (per second)"`
}

type InspectCmd struct {
	Patch    string `arg:"positional,required" help:"Patch file path"`
	Field    string `arg:"positional" help:"Print a single header field: repository, type or minor"`
	Chunks   bool   `arg:"--chunks" help:"List every chunk"`
	Changes  bool   `arg:"--changes" help:"List the paths the patch adds, deletes and modifies"`
	Counts   bool   `arg:"--counts" help:"Compare the declared command counts with the actual ones"`
	Platform string `arg:"--platform" help:"Platform used to name containers when the patch does not say"`
	Output   string `arg:"-o,--output" default:"table" help:"Output format: table, json or yaml"`
}

// Root command struct
type Args struct {
	Apply   *ApplyCmd   `arg:"subcommand:apply" help:"Apply a patch to a game installation"`
	Inspect *InspectCmd `arg:"subcommand:inspect" help:"Show what a patch contains"`
}

func (Args) Description() string {
	return "Reads and applies ZiPatch game patch files"
}

// setupLogger routes engine log messages to stderr, hiding debug output unless verbose
func setupLogger(verbose bool) {
	warning := color.New(color.FgYellow).SprintFunc()
	failure := color.New(color.FgRed, color.Bold).SprintFunc()
	debug := color.New(color.Faint).SprintFunc()

	internal.LogHandler = func(sender interface{}, log internal.LogStruct) {
		switch log.LogLevel {
		case internal.Debug:
			if verbose {
				fmt.Fprintln(os.Stderr, debug(log.Message))
			}
		case internal.Warning:
			fmt.Fprintf(os.Stderr, "[%s] %s\n", warning(log.LogLevel), log.Message)
		case internal.Error:
			fmt.Fprintf(os.Stderr, "[%s] %s\n", failure(log.LogLevel), log.Message)
		default:
			fmt.Fprintf(os.Stderr, "[%v] %s\n", log.LogLevel, log.Message)
		}
	}
}

func main() {
	var args Args
	parser := arg.MustParse(&args)

	settings, err := LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}

	switch {
	case args.Apply != nil:
		setupLogger(args.Apply.Verbose)
		os.Exit(ApplyCommand(args.Apply, settings))

	case args.Inspect != nil:
		setupLogger(false)
		os.Exit(InspectCommand(args.Inspect, os.Stdout))

	default:
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}
}
