// Package cli provides the flags and program loading shared by the commands.
package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"go.creack.net/threebit/assets"
	"go.creack.net/threebit/config"
	"go.creack.net/threebit/op"
	"go.creack.net/threebit/program"
	"go.creack.net/threebit/vm"
)

// ExamplePrefix selects an embedded example as the program source.
const ExamplePrefix = "example:"

// Options holds the common command line flags.
type Options struct {
	Program   string
	A, B, C   uint64
	MaxSteps  int
	Verbosity int
	LogFile   string
	DB        string

	fs *flag.FlagSet
}

// RegisterFlags defines the common flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Options {
	o := &Options{fs: fs}
	fs.StringVar(&o.Program, "program", "", "comma separated program, overrides the source code")
	fs.Uint64Var(&o.A, "a", 0, "initial value of register a")
	fs.Uint64Var(&o.B, "b", 0, "initial value of register b")
	fs.Uint64Var(&o.C, "c", 0, "initial value of register c")
	fs.IntVar(&o.MaxSteps, "max-steps", op.DefaultMaxSteps, "step budget, 0 for unbounded")
	fs.IntVar(&o.Verbosity, "v", 0, "log verbosity (-4 to 2)")
	fs.StringVar(&o.LogFile, "log", "", "log file, default to stderr")
	fs.StringVar(&o.DB, "db", "", "sqlite run log path")
	return o
}

func (o *Options) isSet(name string) bool {
	set := false
	o.fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// Setup is a loaded program ready to run.
type Setup struct {
	Source   string
	Image    *program.Image
	MaxSteps int
	Log      config.Log
	DB       string
}

// Config returns the machine configuration.
func (s *Setup) Config() vm.Config {
	return s.Image.Config(s.MaxSteps)
}

// loadSource returns the image named by source, along with its description
// when it comes from a toml file.
func loadSource(source string) (*program.Image, *config.File, error) {
	var (
		f   *config.File
		err error
	)
	switch {
	case strings.HasPrefix(source, ExamplePrefix):
		f, err = assets.Example(strings.TrimPrefix(source, ExamplePrefix))
	case strings.HasSuffix(source, op.ConfigExt):
		f, err = config.Load(source)
	case strings.HasSuffix(source, op.ImageExt):
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read file %q: %w", source, err)
		}
		img, err := program.Decode(data)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode %q: %w", source, err)
		}
		return img, &config.File{Name: img.Header.Name}, nil
	default:
		return nil, nil, fmt.Errorf("invalid file extension for %q, must be %s or %s", source, op.ConfigExt, op.ImageExt)
	}
	if err != nil {
		return nil, nil, err
	}
	img, err := f.Image()
	if err != nil {
		return nil, nil, err
	}
	return img, f, nil
}

// Load resolves the program source and applies the flag overrides.
// The source may be empty when -program is set.
func (o *Options) Load(source string) (*Setup, error) {
	f := &config.File{Name: "inline"}
	img := program.New(f.Name, "", program.Registers{}, nil)
	if source != "" {
		var err error
		if img, f, err = loadSource(source); err != nil {
			return nil, fmt.Errorf("load %s: %w", source, err)
		}
	} else if o.Program == "" {
		return nil, fmt.Errorf("no program provided")
	}

	if o.Program != "" {
		code, err := ParseProgram(o.Program)
		if err != nil {
			return nil, fmt.Errorf("invalid -program: %w", err)
		}
		img.Code = code
	}
	if o.isSet("a") {
		img.Registers.A = o.A
	}
	if o.isSet("b") {
		img.Registers.B = o.B
	}
	if o.isSet("c") {
		img.Registers.C = o.C
	}

	s := &Setup{
		Source:   source,
		Image:    img,
		MaxSteps: f.MaxSteps,
		Log:      f.Log,
		DB:       o.DB,
	}
	if o.isSet("max-steps") {
		if o.MaxSteps < 0 {
			return nil, fmt.Errorf("invalid -max-steps %d", o.MaxSteps)
		}
		s.MaxSteps = o.MaxSteps
	}
	if o.isSet("v") {
		s.Log.Verbosity = o.Verbosity
	}
	if o.isSet("log") {
		s.Log.File = o.LogFile
	}
	return s, nil
}

// ParseConfig parses the process flags and loads the program named by the
// first positional argument.
func ParseConfig() (*Setup, error) {
	o := RegisterFlags(flag.CommandLine)
	flag.Parse()
	s, err := o.Load(flag.Arg(0))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return s, nil
}

// InitLog configures the commonlog backend.
func InitLog(l config.Log) {
	if l.File == "" {
		commonlog.Configure(l.Verbosity, nil)
		return
	}
	path := l.File
	commonlog.Configure(l.Verbosity, &path)
}

// ParseProgram reads a comma separated list of byte values, i.e. "0,1,5,4,3,0".
func ParseProgram(s string) ([]byte, error) {
	parts := strings.Split(s, ",")
	values := make([]int, 0, len(parts))
	for _, elem := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(elem))
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", elem)
		}
		values = append(values, v)
	}
	return config.Bytes(values)
}

// FormatOutput renders the output as comma separated decimals.
func FormatOutput(out []uint8) string {
	parts := make([]string, 0, len(out))
	for _, elem := range out {
		parts = append(parts, strconv.Itoa(int(elem)))
	}
	return strings.Join(parts, ",")
}

// Usage prints the usage line of the current binary.
func Usage(fs *flag.FlagSet, args string) {
	tmp := strings.Split(os.Args[0], "/")
	binName := tmp[len(tmp)-1]
	fmt.Fprintf(fs.Output(), "usage: %s [options] %s\n", binName, args)
	fmt.Fprintf(fs.Output(), "examples: %s%s\n", ExamplePrefix, strings.Join(assets.Examples(), ", "+ExamplePrefix))
	fs.PrintDefaults()
}
