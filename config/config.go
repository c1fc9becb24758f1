// Package config handles the threebit.toml machine description.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"go.creack.net/threebit/op"
	"go.creack.net/threebit/program"
)

// File represents a machine description file.
type File struct {
	Name      string    `toml:"name"`
	Comment   string    `toml:"comment,omitempty"`
	Program   []int     `toml:"program"`
	MaxSteps  int       `toml:"max_steps,omitempty"`
	Registers Registers `toml:"registers"`
	Log       Log       `toml:"log,omitempty"`

	// Path of the file, set at load time.
	Path string `toml:"-"`
}

// Registers holds the initial register values. TOML integers are signed,
// negative values are rejected at load time.
type Registers struct {
	A int64 `toml:"a,omitempty"`
	B int64 `toml:"b,omitempty"`
	C int64 `toml:"c,omitempty"`
}

func (r Registers) validate() error {
	for i, v := range []int64{r.A, r.B, r.C} {
		if v < 0 {
			return fmt.Errorf("register %s is negative (%d)", op.RegisterNames[i], v)
		}
	}
	return nil
}

func (r Registers) Image() program.Registers {
	return program.Registers{A: uint64(r.A), B: uint64(r.B), C: uint64(r.C)}
}

// Log configures the commonlog backend.
type Log struct {
	Verbosity int    `toml:"verbosity,omitempty"`
	File      string `toml:"file,omitempty"`
}

// Load parses the given toml file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	f, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	f.Path = path
	return f, nil
}

// Parse decodes a machine description. The name is used for error reports
// and as the default program name.
func Parse(name string, data []byte) (*File, error) {
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", name, strings.Join(keys, ", "))
	}

	// Defaults.
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(name), op.ConfigExt)
	}
	if f.MaxSteps < 0 {
		return nil, fmt.Errorf("invalid max_steps %d in %s", f.MaxSteps, name)
	}
	if err := f.Registers.validate(); err != nil {
		return nil, fmt.Errorf("invalid registers in %s: %w", name, err)
	}
	if _, err := f.Code(); err != nil {
		return nil, fmt.Errorf("invalid program in %s: %w", name, err)
	}
	return &f, nil
}

// Code returns the program as bytes.
func (f *File) Code() ([]byte, error) {
	return Bytes(f.Program)
}

// Bytes converts a list of numbers into program bytes.
func Bytes(values []int) ([]byte, error) {
	out := make([]byte, 0, len(values))
	for i, v := range values {
		if v < 0 || v > 0xff {
			return nil, fmt.Errorf("value %d at index %d does not fit in a byte", v, i)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// Image converts the description into a program image.
func (f *File) Image() (*program.Image, error) {
	code, err := f.Code()
	if err != nil {
		return nil, err
	}
	img := program.New(f.Name, f.Comment, f.Registers.Image(), code)
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// FromImage returns the description of an image.
// Register values above the int64 range cannot be expressed in toml.
func FromImage(img *program.Image) (*File, error) {
	regs := []uint64{img.Registers.A, img.Registers.B, img.Registers.C}
	for i, v := range regs {
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("register %s value %d does not fit in toml", op.RegisterNames[i], v)
		}
	}
	values := make([]int, 0, len(img.Code))
	for _, b := range img.Code {
		values = append(values, int(b))
	}
	return &File{
		Name:      img.Header.Name,
		Comment:   img.Header.Comment,
		Program:   values,
		Registers: Registers{A: int64(regs[0]), B: int64(regs[1]), C: int64(regs[2])},
	}, nil
}

// Encode renders the description as toml.
func (f *File) Encode() ([]byte, error) {
	buf, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", f.Name, err)
	}
	return buf, nil
}
