package vm

import "go.creack.net/threebit/op"

// Code is the read-only program memory of a machine.
type Code []byte

// Fetch returns the opcode and operand at pc.
// ok is false when either byte lies outside the program.
func (c Code) Fetch(pc int) (opcode, operand byte, ok bool) {
	if !c.Valid(pc) {
		return 0, 0, false
	}
	return c[pc], c[pc+1], true
}

// Valid reports whether a full instruction starts at pc.
func (c Code) Valid(pc int) bool {
	return pc >= 0 && pc+op.InstructionSize-1 < len(c)
}
