package op

const (
	InstructionSize = 2 // Opcode byte followed by its operand byte.
	MaxOpCode       = 7
	MaxComboOperand = 6 // 7 is reserved and never valid as a combo operand.
	OutputMask      = 0b111
)

// RegisterCount is the number of general purpose registers.
const RegisterCount = 3

// RegisterNames in the order they are stored, and in the order of the
// combo operands 4 to 6.
var RegisterNames = [RegisterCount]string{"a", "b", "c"}

// Opcodes.
const (
	Adv byte = iota // A <- A >> combo.
	Bxl             // B <- B ^ literal.
	Bst             // B <- combo % 8.
	Jnz             // Jump to literal if A != 0.
	Bxc             // B <- B ^ C.
	Out             // Emit combo % 8.
	Bdv             // B <- A >> combo.
	Cdv             // C <- A >> combo.
)

// OpCode is the definition of instructions.
type OpCode struct {
	Name    string
	Code    byte
	Operand OperandType
	Comment string
}

var OpCodeTable = []OpCode{
	{"adv", Adv, OperandCombo, "a <- a / 2^combo"},
	{"bxl", Bxl, OperandLiteral, "b <- b xor literal"},
	{"bst", Bst, OperandCombo, "b <- combo mod 8"},
	{"jnz", Jnz, OperandLiteral, "jump to literal if a != 0"},
	{"bxc", Bxc, OperandIgnored, "b <- b xor c"},
	{"out", Out, OperandCombo, "output combo mod 8"},
	{"bdv", Bdv, OperandCombo, "b <- a / 2^combo"},
	{"cdv", Cdv, OperandCombo, "c <- a / 2^combo"},
}

// Lookup returns the definition of the given opcode byte.
func Lookup(code byte) (OpCode, bool) {
	if int(code) >= len(OpCodeTable) {
		return OpCode{}, false
	}
	return OpCodeTable[code], true
}

// VM settings.
const (
	DefaultMaxSteps = 0 // Unbounded.
)
