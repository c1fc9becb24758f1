// Package vm implements the three register bytecode machine.
package vm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"go.creack.net/threebit/op"
)

var logger = commonlog.GetLogger("threebit.vm")

// How many steps run between two context checks.
const ctxCheckInterval = 1024

type Registers struct {
	A, B, C uint64
}

type Config struct {
	Registers        // Initial register values.
	Program   []byte // Opcode/operand pairs.
	MaxSteps  int    // Step budget, 0 for unbounded.
}

// Status of a machine. Every status but StatusRunning is terminal.
type Status int

const (
	StatusRunning Status = iota
	StatusHalted         // Ran off the end of the program.
	StatusTrapped        // Stopped on an invalid opcode or operand.
	StatusTimeout        // Step budget exhausted or context done.
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusHalted:
		return "halted"
	case StatusTrapped:
		return "trapped"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ParseStatus is the reverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for st := StatusRunning; st <= StatusTimeout; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

type Machine struct {
	Config Config

	Registers Registers
	Code      Code
	PC        int
	Output    []uint8

	Status Status
	Steps  int   // Number of executed instructions.
	Err    error // Set when trapped or timed out.

	// Messages is an optional channel where the machine sends events.
	// When set, it needs to be consumed otherwise it will block.
	Messages chan Message `json:"-"`
}

func New(cfg Config) *Machine {
	m := &Machine{
		Config: cfg,
		Code:   Code(slices.Clone(cfg.Program)),
	}
	m.Reset()
	return m
}

// Reset restores the initial registers and clears the run state.
func (m *Machine) Reset() {
	m.Registers = m.Config.Registers
	m.PC = 0
	m.Output = nil
	m.Status = StatusRunning
	m.Steps = 0
	m.Err = nil
	m.send(MsgReset, "")
}

func (m *Machine) send(mt MessageType, msg string) {
	if m.Messages == nil {
		return
	}
	m.Messages <- NewMessage(mt, m.PC, m.Steps, msg)
}

// Combo resolves a combo operand: 0-3 are literals, 4-6 are registers a, b and c.
func (m *Machine) Combo(operand byte) (uint64, error) {
	switch operand {
	case 0, 1, 2, 3:
		return uint64(operand), nil
	case 4:
		return m.Registers.A, nil
	case 5:
		return m.Registers.B, nil
	case 6:
		return m.Registers.C, nil
	default:
		return 0, fmt.Errorf("%w %d", ErrInvalidComboOperand, operand)
	}
}

// Next is the effect of an instruction on the pointer.
// The zero value advances to the following instruction.
type Next struct {
	PC   int
	Jump bool
}

func (n Next) Resolve(pc int) int {
	if n.Jump {
		return n.PC
	}
	return pc + op.InstructionSize
}

// shr returns floor(v / 2^n). Go defines unsigned shifts by the type
// width or more as 0, which is the expected quotient.
func shr(v, n uint64) uint64 { return v >> n }

// divOp returns the op function for the division instructions,
// storing A / 2^combo into the target register.
func divOp(target func(r *Registers) *uint64) func(m *Machine, operand byte) (Next, error) {
	return func(m *Machine, operand byte) (Next, error) {
		n, err := m.Combo(operand)
		if err != nil {
			return Next{}, err
		}
		*target(&m.Registers) = shr(m.Registers.A, n)
		return Next{}, nil
	}
}

var ops = [op.MaxOpCode + 1]func(m *Machine, operand byte) (Next, error){
	// adv. bdv. cdv. Divide A by 2^combo into A, B or C.
	op.Adv: divOp(func(r *Registers) *uint64 { return &r.A }),
	op.Bdv: divOp(func(r *Registers) *uint64 { return &r.B }),
	op.Cdv: divOp(func(r *Registers) *uint64 { return &r.C }),

	// bxl. B xor literal.
	op.Bxl: func(m *Machine, operand byte) (Next, error) {
		m.Registers.B ^= uint64(operand)
		return Next{}, nil
	},

	// bst. Lowest 3 bits of combo into B.
	op.Bst: func(m *Machine, operand byte) (Next, error) {
		v, err := m.Combo(operand)
		if err != nil {
			return Next{}, err
		}
		m.Registers.B = v & op.OutputMask
		return Next{}, nil
	},

	// jnz. Set the pointer to the literal operand unless A is 0.
	op.Jnz: func(m *Machine, operand byte) (Next, error) {
		if m.Registers.A == 0 {
			return Next{}, nil // Advance the pointer.
		}
		m.send(MsgJump, fmt.Sprintf("jump %d -> %d", m.PC, operand))
		return Next{PC: int(operand), Jump: true}, nil
	},

	// bxc. B xor C. The operand is read but unused.
	op.Bxc: func(m *Machine, _ byte) (Next, error) {
		m.Registers.B ^= m.Registers.C
		return Next{}, nil
	},

	// out. Emit the lowest 3 bits of combo.
	op.Out: func(m *Machine, operand byte) (Next, error) {
		v, err := m.Combo(operand)
		if err != nil {
			return Next{}, err
		}
		m.Output = append(m.Output, uint8(v&op.OutputMask))
		m.send(MsgOutput, strconv.FormatUint(v&op.OutputMask, 10))
		return Next{}, nil
	},
}

// Exec applies one instruction to the machine state.
// It does not move the pointer, the returned Next tells where to go.
func (m *Machine) Exec(ins Instruction) (Next, error) {
	code := ins.OpCode.Code
	if int(code) >= len(ops) || ins.OpCode.Name == "" {
		return Next{}, &TrapError{PC: ins.PC, Opcode: code, Operand: ins.Operand, Err: ErrInvalidOpcode}
	}
	next, err := ops[code](m, ins.Operand)
	if err != nil {
		return Next{}, &TrapError{PC: ins.PC, Opcode: code, Operand: ins.Operand, Err: err}
	}
	return next, nil
}

func (m *Machine) trap(err error) error {
	m.Status = StatusTrapped
	m.Err = err
	logger.Debugf("trapped after %d steps: %s", m.Steps, err)
	m.send(MsgTrap, err.Error())
	return err
}

func (m *Machine) timeout(err error) error {
	m.Status = StatusTimeout
	m.Err = err
	logger.Debugf("timed out after %d steps: %s", m.Steps, err)
	m.send(MsgTimeout, err.Error())
	return err
}

// Step executes the instruction at the pointer.
// It returns false once the machine reached a terminal status.
func (m *Machine) Step() (bool, error) {
	if m.Status != StatusRunning {
		return false, m.Err
	}

	ins, ok, err := Decode(m.Code, m.PC)
	if err != nil {
		return false, m.trap(err)
	}
	if !ok {
		m.Status = StatusHalted
		m.send(MsgHalt, fmt.Sprintf("halted after %d steps", m.Steps))
		return false, nil
	}

	next, err := m.Exec(ins)
	if err != nil {
		return false, m.trap(err)
	}
	m.PC = next.Resolve(m.PC)
	m.Steps++
	return true, nil
}

// StepContext is Step guarded by the step budget and ctx.
func (m *Machine) StepContext(ctx context.Context) (bool, error) {
	if m.Status == StatusRunning && m.Code.Valid(m.PC) {
		if m.Config.MaxSteps > 0 && m.Steps >= m.Config.MaxSteps {
			return false, m.timeout(fmt.Errorf("%w: %d", ErrStepLimit, m.Config.MaxSteps))
		}
		if m.Steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return false, m.timeout(err)
			}
		}
	}
	return m.Step()
}

// Run executes the program until it halts and returns its output.
// On error, the output emitted so far is returned along with it.
func (m *Machine) Run() ([]uint8, error) {
	return m.RunContext(context.Background())
}

// RunContext is Run bounded by the step budget and ctx.
func (m *Machine) RunContext(ctx context.Context) ([]uint8, error) {
	for {
		ok, err := m.StepContext(ctx)
		if err != nil {
			return m.Output, err
		}
		if !ok {
			return m.Output, nil
		}
	}
}

// Outputs streams the output values as they are emitted.
// A terminal error is yielded last, with a zero value.
func (m *Machine) Outputs() iter.Seq2[uint8, error] {
	return func(yield func(uint8, error) bool) {
		for {
			n := len(m.Output)
			ok, err := m.StepContext(context.Background())
			if len(m.Output) > n && !yield(m.Output[n], nil) {
				return
			}
			if err != nil {
				yield(0, err)
				return
			}
			if !ok {
				return
			}
		}
	}
}

// Halted reports whether the machine ran off the end of its program.
func (m *Machine) Halted() bool { return m.Status == StatusHalted }

// Trapped reports whether err comes from a malformed program.
func Trapped(err error) bool {
	var te *TrapError
	return errors.As(err, &te)
}

func (m *Machine) String() string {
	outs := make([]string, 0, len(m.Output))
	for _, v := range m.Output {
		outs = append(outs, strconv.Itoa(int(v)))
	}
	return fmt.Sprintf("A: %d, B: %d, C: %d, PC: %d -> %s", m.Registers.A, m.Registers.B, m.Registers.C, m.PC, strings.Join(outs, ","))
}
