package vm

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"go.creack.net/threebit/op"
)

func newMachine(a, b, c uint64, program ...byte) *Machine {
	return New(Config{Registers: Registers{A: a, B: b, C: c}, Program: program})
}

func mustStep(t *testing.T, m *Machine) {
	t.Helper()
	ok, err := m.Step()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !ok {
		t.Fatalf("step: machine stopped early (%s)", m.Status)
	}
}

func TestStepSingleInstructions(t *testing.T) {
	tests := []struct {
		name    string
		m       *Machine
		want    Registers
		wantOut []uint8
	}{
		{"bst from c", newMachine(0, 0, 9, 2, 6), Registers{B: 1, C: 9}, nil},
		{"bxl literal", newMachine(0, 29, 0, 1, 7), Registers{B: 26}, nil},
		{"bxc ignores operand", newMachine(0, 2024, 43690, 4, 0), Registers{B: 44354, C: 43690}, nil},
		{"adv literal", newMachine(2024, 0, 0, 0, 1), Registers{A: 1012}, nil},
		{"bdv from b", newMachine(100, 3, 0, 6, 5), Registers{A: 100, B: 12}, nil},
		{"cdv from a", newMachine(8, 0, 0, 7, 4), Registers{A: 8, C: 0}, nil},
		{"out register", newMachine(0, 13, 0, 5, 5), Registers{B: 13}, []uint8{5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mustStep(t, tt.m)
			if tt.m.Registers != tt.want {
				t.Errorf("registers = %+v, want %+v", tt.m.Registers, tt.want)
			}
			if !slices.Equal(tt.m.Output, tt.wantOut) {
				t.Errorf("output = %v, want %v", tt.m.Output, tt.wantOut)
			}
			if tt.m.PC != op.InstructionSize {
				t.Errorf("pc = %d, want %d", tt.m.PC, op.InstructionSize)
			}
		})
	}
}

func TestRunPrograms(t *testing.T) {
	tests := []struct {
		name  string
		m     *Machine
		want  []uint8
		wantA uint64
	}{
		{"literal and register emits", newMachine(10, 0, 0, 5, 0, 5, 1, 5, 4), []uint8{0, 1, 2}, 10},
		{"countdown 729", newMachine(729, 0, 0, 0, 1, 5, 4, 3, 0), []uint8{4, 6, 3, 5, 6, 3, 5, 2, 1, 0}, 0},
		{"countdown 2024", newMachine(2024, 0, 0, 0, 1, 5, 4, 3, 0), []uint8{4, 2, 5, 6, 7, 7, 7, 7, 3, 1, 0}, 0},
		{"empty program", newMachine(1, 2, 3), nil, 1},
		{"odd trailing byte", newMachine(3, 0, 0, 5, 4, 0), []uint8{3}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.m.Run()
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("output = %v, want %v", got, tt.want)
			}
			if tt.m.Registers.A != tt.wantA {
				t.Errorf("a = %d, want %d", tt.m.Registers.A, tt.wantA)
			}
			if tt.m.Status != StatusHalted {
				t.Errorf("status = %s, want %s", tt.m.Status, StatusHalted)
			}
		})
	}
}

func TestHalvingLoop(t *testing.T) {
	m := newMachine(2024, 0, 0, 0, 1, 3, 0)
	for _, want := range []uint64{1012, 506, 253, 126, 63, 31, 15, 7, 3, 1, 0} {
		mustStep(t, m) // adv.
		if m.Registers.A != want {
			t.Fatalf("a = %d, want %d", m.Registers.A, want)
		}
		mustStep(t, m) // jnz.
	}
	if ok, err := m.Step(); ok || err != nil {
		t.Fatalf("expected halt, got ok=%v err=%v", ok, err)
	}
	if !m.Halted() {
		t.Fatalf("status = %s, want halted", m.Status)
	}
}

func TestJump(t *testing.T) {
	m := newMachine(0, 0, 0, 3, 4, 5, 1)
	mustStep(t, m)
	if m.PC != 2 {
		t.Fatalf("jnz with a=0 moved pc to %d, want 2", m.PC)
	}

	m = newMachine(1, 0, 0, 3, 4, 5, 1, 5, 2)
	mustStep(t, m)
	if m.PC != 4 {
		t.Fatalf("jnz with a!=0 moved pc to %d, want 4", m.PC)
	}
	out, err := m.Run()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(out, []uint8{2}) {
		t.Fatalf("output = %v, want [2]", out)
	}
}

func TestJumpPastEndHalts(t *testing.T) {
	m := newMachine(1, 0, 0, 3, 200)
	out, err := m.Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 || !m.Halted() || m.PC != 200 {
		t.Fatalf("unexpected state: %s (%s)", m, m.Status)
	}
}

func TestDivisionMatchesFloor(t *testing.T) {
	const a = uint64(0xfedcba9876543210)
	for n := range uint64(64) {
		for _, code := range []byte{op.Adv, op.Bdv, op.Cdv} {
			m := newMachine(a, n, 0, code, 5) // Combo 5 is register b.
			mustStep(t, m)
			want := a / (uint64(1) << n)
			var got uint64
			switch code {
			case op.Adv:
				got = m.Registers.A
			case op.Bdv:
				got = m.Registers.B
			case op.Cdv:
				got = m.Registers.C
			}
			if got != want {
				t.Fatalf("opcode %d, n=%d: got %d, want %d", code, n, got, want)
			}
		}
	}
}

func TestDivisionLargeExponent(t *testing.T) {
	for _, n := range []uint64{64, 65, 1 << 40, ^uint64(0)} {
		m := newMachine(^uint64(0), n, 0, 0, 5)
		mustStep(t, m)
		if m.Registers.A != 0 {
			t.Fatalf("n=%d: a = %d, want 0", n, m.Registers.A)
		}
	}
}

func TestComboIsPure(t *testing.T) {
	m := newMachine(11, 22, 33)
	want := []uint64{0, 1, 2, 3, 11, 22, 33}
	for operand, w := range want {
		first, err := m.Combo(byte(operand))
		if err != nil {
			t.Fatalf("combo %d: %v", operand, err)
		}
		second, _ := m.Combo(byte(operand))
		if first != w || second != w {
			t.Fatalf("combo %d = %d then %d, want %d", operand, first, second, w)
		}
	}
	if m.Registers != (Registers{A: 11, B: 22, C: 33}) {
		t.Fatalf("combo mutated registers: %+v", m.Registers)
	}
}

func TestInvalidComboOperand(t *testing.T) {
	for _, program := range [][]byte{{5, 7}, {0, 7}, {2, 9}, {6, 7}, {7, 255}} {
		m := newMachine(1, 1, 1, program...)
		_, err := m.Run()
		if !errors.Is(err, ErrInvalidComboOperand) {
			t.Fatalf("%v: err = %v, want ErrInvalidComboOperand", program, err)
		}
		var te *TrapError
		if !errors.As(err, &te) || te.PC != 0 || te.Operand != program[1] {
			t.Fatalf("%v: unexpected trap error %#v", program, te)
		}
		if m.Status != StatusTrapped {
			t.Fatalf("%v: status = %s, want trapped", program, m.Status)
		}
	}

	// Literal operands are never resolved, 7 is fine there.
	m := newMachine(0, 0, 0, 1, 7, 3, 7)
	if _, err := m.Run(); err != nil {
		t.Fatalf("literal operand 7: %v", err)
	}
}

func TestInvalidOpcode(t *testing.T) {
	m := newMachine(0, 0, 0, 5, 1, 8, 0, 5, 2)
	out, err := m.Run()
	if !errors.Is(err, ErrInvalidOpcode) {
		t.Fatalf("err = %v, want ErrInvalidOpcode", err)
	}
	if !Trapped(err) {
		t.Fatal("expected a trap error")
	}
	if !slices.Equal(out, []uint8{1}) {
		t.Fatalf("partial output = %v, want [1]", out)
	}

	// The machine stays trapped.
	if ok, err2 := m.Step(); ok || !errors.Is(err2, ErrInvalidOpcode) {
		t.Fatalf("step after trap: ok=%v err=%v", ok, err2)
	}
}

func TestStepLimit(t *testing.T) {
	m := New(Config{Registers: Registers{A: 1}, Program: []byte{3, 0}, MaxSteps: 100})
	_, err := m.Run()
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("err = %v, want ErrStepLimit", err)
	}
	if m.Status != StatusTimeout || m.Steps != 100 {
		t.Fatalf("status = %s after %d steps", m.Status, m.Steps)
	}
	if Trapped(err) {
		t.Fatal("timeout must not be reported as a trap")
	}
}

func TestStepLimitExactHalt(t *testing.T) {
	m := New(Config{Registers: Registers{A: 10}, Program: []byte{5, 0, 5, 1, 5, 4}, MaxSteps: 3})
	out, err := m.Run()
	if err != nil {
		t.Fatalf("program fitting the budget: %v", err)
	}
	if !slices.Equal(out, []uint8{0, 1, 2}) || !m.Halted() {
		t.Fatalf("output %v, status %s", out, m.Status)
	}
}

func TestRunContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newMachine(1, 0, 0, 3, 0)
	_, err := m.RunContext(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if m.Status != StatusTimeout {
		t.Fatalf("status = %s, want timeout", m.Status)
	}
}

func TestRunContextCanceledWhileRunning(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	m := newMachine(1, 0, 0, 3, 0)
	out, err := m.RunContext(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if m.Status != StatusTimeout || out != nil {
		t.Fatalf("status = %s, output = %v", m.Status, out)
	}
	if m.Steps == 0 || m.Steps%ctxCheckInterval != 0 {
		t.Fatalf("steps = %d, want a positive multiple of %d", m.Steps, ctxCheckInterval)
	}
}

func TestOutputsStream(t *testing.T) {
	m := newMachine(729, 0, 0, 0, 1, 5, 4, 3, 0)
	var got []uint8
	for v, err := range m.Outputs() {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, v)
	}
	if !slices.Equal(got, []uint8{4, 6, 3, 5, 6, 3, 5, 2, 1, 0}) {
		t.Fatalf("stream = %v", got)
	}

	// Early break leaves the machine resumable.
	m = newMachine(729, 0, 0, 0, 1, 5, 4, 3, 0)
	for range m.Outputs() {
		break
	}
	rest, err := m.Run()
	if err != nil || len(rest) != 10 {
		t.Fatalf("resume: %v %v", rest, err)
	}
}

func TestOutputsStreamError(t *testing.T) {
	m := newMachine(0, 0, 0, 5, 3, 5, 7)
	var vals []uint8
	var last error
	for v, err := range m.Outputs() {
		if err != nil {
			last = err
			break
		}
		vals = append(vals, v)
	}
	if !slices.Equal(vals, []uint8{3}) || !errors.Is(last, ErrInvalidComboOperand) {
		t.Fatalf("vals=%v err=%v", vals, last)
	}
}

func TestDeterminismAndReset(t *testing.T) {
	cfg := Config{Registers: Registers{A: 117440}, Program: []byte{0, 3, 5, 4, 3, 0}}
	m1, m2 := New(cfg), New(cfg)
	out1, err1 := m1.Run()
	out2, err2 := m2.Run()
	if err1 != nil || err2 != nil {
		t.Fatal(err1, err2)
	}
	if !slices.Equal(out1, out2) {
		t.Fatalf("outputs differ: %v vs %v", out1, out2)
	}
	if !slices.Equal(out1, []uint8{0, 3, 5, 4, 3, 0}) {
		t.Fatalf("output = %v", out1)
	}

	first := slices.Clone(out1)
	m1.Reset()
	if m1.Status != StatusRunning || m1.PC != 0 || m1.Registers.A != 117440 || len(m1.Output) != 0 {
		t.Fatalf("reset left state: %s", m1)
	}
	again, _ := m1.Run()
	if !slices.Equal(first, again) {
		t.Fatalf("rerun = %v, want %v", again, first)
	}
}

func TestProgramIsCopied(t *testing.T) {
	program := []byte{5, 4}
	m := newMachine(3, 0, 0, program...)
	program[1] = 0
	out, _ := m.Run()
	if !slices.Equal(out, []uint8{3}) {
		t.Fatalf("output = %v, machine saw caller mutation", out)
	}
}

func TestMessages(t *testing.T) {
	m := newMachine(1, 0, 0, 5, 1, 0, 1, 3, 0)
	m.Messages = make(chan Message, 16)
	if _, err := m.Run(); err != nil {
		t.Fatal(err)
	}
	close(m.Messages)
	var types []MessageType
	for msg := range m.Messages {
		types = append(types, msg.Type)
	}
	want := []MessageType{MsgOutput, MsgHalt}
	if !slices.Equal(types, want) {
		t.Fatalf("messages = %v, want %v", types, want)
	}
}

func TestString(t *testing.T) {
	m := newMachine(10, 0, 0, 5, 0, 5, 1)
	_, _ = m.Run()
	if got, want := m.String(), "A: 10, B: 0, C: 0, PC: 4 -> 0,1"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestParseStatus(t *testing.T) {
	for _, st := range []Status{StatusRunning, StatusHalted, StatusTrapped, StatusTimeout} {
		got, err := ParseStatus(st.String())
		if err != nil || got != st {
			t.Errorf("ParseStatus(%q) = %s, %v", st, got, err)
		}
	}
	if _, err := ParseStatus("exploded"); err == nil {
		t.Error("expected an error")
	}
}

func TestStepContext(t *testing.T) {
	m := New(Config{Program: []byte{3, 0}, Registers: Registers{A: 1}, MaxSteps: 3})
	for i := range 3 {
		ok, err := m.StepContext(context.Background())
		if !ok || err != nil {
			t.Fatalf("step %d: %v, %v", i, ok, err)
		}
	}
	ok, err := m.StepContext(context.Background())
	if ok || !errors.Is(err, ErrStepLimit) || m.Status != StatusTimeout {
		t.Fatalf("ok = %v, err = %v, status = %s", ok, err, m.Status)
	}
	if m.Steps != 3 {
		t.Fatalf("steps = %d, want 3", m.Steps)
	}
}
