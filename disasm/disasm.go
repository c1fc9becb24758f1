package disasm

import (
	"errors"
	"fmt"
	"strings"

	"go.creack.net/threebit/assets"
	"go.creack.net/threebit/op"
	"go.creack.net/threebit/program"
	"go.creack.net/threebit/vm"
)

type Line struct {
	PC    int
	Bytes []byte
	Ins   vm.Instruction
	Valid bool   // False for bytes that would trap or never execute.
	Note  string // Why the line is not valid.
}

func (l Line) PrettyPrint() string {
	raw := make([]string, 0, len(l.Bytes))
	for _, b := range l.Bytes {
		raw = append(raw, fmt.Sprintf("%02x", b))
	}
	prefix := fmt.Sprintf("%04d  %-5s", l.PC, strings.Join(raw, " "))

	if l.Ins.OpCode.Name == "" {
		vals := make([]string, 0, len(l.Bytes))
		for _, b := range l.Bytes {
			vals = append(vals, fmt.Sprintf("%d", b))
		}
		return fmt.Sprintf("%s  %- 8s %s\t; %s", prefix, ".byte", strings.Join(vals, ", "), l.Note)
	}

	comment := l.Ins.OpCode.Comment
	if !l.Valid {
		comment = l.Note
	}
	return fmt.Sprintf("%s  %- 8s %s\t; %s", prefix, l.Ins.OpCode.Name, l.Ins.OpCode.Operand.Format(l.Ins.Operand), comment)
}

type Listing struct {
	Name  string // Name of the matching known example, if any.
	Lines []Line
}

func (l *Listing) String() string {
	out := &strings.Builder{}
	if l.Name != "" {
		fmt.Fprintf(out, "; %s\n", l.Name)
	}
	for _, elem := range l.Lines {
		fmt.Fprintf(out, "%s\n", elem.PrettyPrint())
	}
	return out.String()
}

// Disasm decodes the whole program, one line per instruction.
// Invalid bytes do not stop the listing.
func Disasm(code []byte) *Listing {
	l := &Listing{}
	if name, ok := assets.Lookup(program.Digest(code)); ok {
		l.Name = name
	}

	for pc := 0; pc < len(code); pc += op.InstructionSize {
		ins, ok, err := vm.Decode(code, pc)
		if !ok {
			// Odd trailing byte, never executed.
			l.Lines = append(l.Lines, Line{PC: pc, Bytes: code[pc:], Note: "incomplete instruction"})
			continue
		}
		line := Line{PC: pc, Bytes: code[pc : pc+op.InstructionSize], Ins: ins, Valid: true}
		switch {
		case errors.Is(err, vm.ErrInvalidOpcode):
			line.Valid = false
			line.Note = "invalid opcode"
		case ins.OpCode.Operand == op.OperandCombo && ins.Operand > op.MaxComboOperand:
			line.Valid = false
			line.Note = "invalid combo operand"
		case ins.OpCode.Code == op.Jnz && int(ins.Operand) >= len(code):
			// Valid, but halts when taken.
			line.Note = "jumps past the end"
		}
		l.Lines = append(l.Lines, line)
	}
	return l
}
