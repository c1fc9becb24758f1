package main

import (
	"flag"
	"fmt"
	"log"

	"go.creack.net/threebit/cli"
	"go.creack.net/threebit/disasm"
)

func main() {
	log.SetFlags(0)
	dumpMode := flag.Bool("dump", false, "also print a hex dump of the code")
	strict := flag.Bool("strict", false, "fail when the program contains invalid instructions")
	flag.Usage = func() { cli.Usage(flag.CommandLine, "<.toml|.3b|example:name>") }

	s, err := cli.ParseConfig()
	if err != nil {
		flag.Usage()
		log.Fatalf("Failed to parse CLI config: %s.", err)
	}
	cli.InitLog(s.Log)

	l := disasm.Disasm(s.Image.Code)
	if l.Name == "" {
		l.Name = s.Image.Header.Name
	} else if l.Name != s.Image.Header.Name {
		log.Printf("Found match in known examples: %s.", l.Name)
	}
	fmt.Print(l)
	if *dumpMode {
		fmt.Printf("\n%s", disasm.HexDump(s.Image.Code, -1))
	}

	if *strict {
		for _, line := range l.Lines {
			if !line.Valid {
				log.Fatalf("fail: pc %d: %s.", line.PC, line.Note)
			}
		}
	}
}
