package vm

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOpcode       = errors.New("invalid opcode")
	ErrInvalidComboOperand = errors.New("invalid combo operand")
	ErrStepLimit           = errors.New("step limit exceeded")
)

// TrapError is returned when the machine stops on a malformed instruction.
type TrapError struct {
	PC      int
	Opcode  byte
	Operand byte
	Err     error
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("trap at pc %d (opcode %d, operand %d): %s", e.PC, e.Opcode, e.Operand, e.Err)
}

func (e *TrapError) Unwrap() error { return e.Err }
