package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.creack.net/threebit/cli"
	"go.creack.net/threebit/config"
	"go.creack.net/threebit/op"
	"go.creack.net/threebit/program"
)

func pack(input, output string) error {
	f, err := config.Load(input)
	if err != nil {
		return fmt.Errorf("failed to load: %w", err)
	}
	img, err := f.Image()
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	buf, err := img.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}
	if err := os.WriteFile(output, buf, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func unpack(input, output string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	img, err := program.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	f, err := config.FromImage(img)
	if err != nil {
		return err
	}
	buf, err := f.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, buf, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func main() {
	log.SetFlags(0)
	output := flag.String("o", "", "output file, default to <input> with the "+op.ImageExt+" (or "+op.ConfigExt+" with -unpack) extension")
	unpackMode := flag.Bool("unpack", false, "convert a "+op.ImageExt+" image back to "+op.ConfigExt)
	flag.Parse()
	input := flag.Arg(0)
	if input == "" {
		cli.Usage(flag.CommandLine, "<"+op.ConfigExt+" path>")
		return
	}

	from, to, f := op.ConfigExt, op.ImageExt, pack
	if *unpackMode {
		from, to, f = op.ImageExt, op.ConfigExt, unpack
	}
	if *output == "" {
		*output = strings.TrimSuffix(input, from) + to
	}
	if *output == input {
		log.Fatalf("fail: output would overwrite %q.", input)
	}

	if err := f(input, *output); err != nil {
		log.Fatalf("fail: %s.", err)
	}
}
