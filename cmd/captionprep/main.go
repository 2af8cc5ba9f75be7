// Command captionprep prepares an image captioning dataset and runs the
// captioning network forward pass.
//
//	captionprep <command> [flags]
//
// Run a command with -h for its flags. Every flag has a default in the
// embedded JSON config (see -print-config), which a file given with -config
// overrides; flags set on the command line override both.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// command is one captionprep subcommand.
type command struct {
	name  string
	usage string
	// flags binds the command flags to fields of cfg.
	flags func(fs *flag.FlagSet, cfg *Config)
	run   func(ctx context.Context, cfg *Config) error
}

var commands = []command{
	{"download", "download and extract a dataset, then copy it to -dest", downloadFlags, runDownload},
	{"stats", "describe the image sizes of a folder and plot them", statsFlags, runStats},
	{"explore", "save a grid of random images with their captions", exploreFlags, runExplore},
	{"pad", "pad every image of a folder to a common size", padFlags, runPad},
	{"split", "split images and captions into train, val and test folders", splitFlags, runSplit},
	{"vocab", "extract the vocabulary of the train captions of a split", vocabFlags, runVocab},
	{"forward", "run the captioning network on one batch of a split", forwardFlags, runForward},
	{"backend", "report the compute backend used by the model", func(*flag.FlagSet, *Config) {}, runBackend},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <command> [flags]\n\ncommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.usage)
	}
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func main() {
	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		usage()
		os.Exit(2)
	}
	cmd, ok := findCommand(os.Args[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	cfg := defaultConfig()
	fs := flag.NewFlagSet(cmd.name, flag.ExitOnError)
	klog.InitFlags(fs)
	configPath := fs.String("config", "", "path to a JSON config file, read over the embedded defaults")
	printConfig := fs.Bool("print-config", false, "print the effective (JSON+CLI merged) configuration and exit")
	cmd.flags(fs, cfg)
	_ = fs.Parse(os.Args[2:])
	defer klog.Flush()

	if err := cfg.merge(fs, *configPath); err != nil {
		klog.Fatalf("captionprep %s: %+v", cmd.name, err)
	}
	if *printConfig {
		fmt.Println(cfg)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := cmd.run(ctx, cfg); err != nil {
		klog.Fatalf("captionprep %s: %+v", cmd.name, err)
	}
}

// fillColors are the accepted values of pad -fill.
var fillColors = map[string]color.Color{
	"black":       color.Black,
	"white":       color.White,
	"transparent": color.Transparent,
}

func parseFill(name string) (color.Color, error) {
	if c, ok := fillColors[strings.ToLower(name)]; ok {
		return c, nil
	}
	names := make([]string, 0, len(fillColors))
	for n := range fillColors {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, errors.Errorf("unknown fill color %q, use one of %s", name, strings.Join(names, ", "))
}
