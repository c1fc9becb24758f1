package op

import "fmt"

// OperandType enum type.
type OperandType int

// OperandType values.
const (
	OperandCombo   OperandType = iota + 1 // 0-3 literal, 4-6 register a/b/c.
	OperandLiteral                        // Raw byte.
	OperandIgnored                        // Decoded and skipped.
)

func (ot OperandType) String() string {
	switch ot {
	case OperandCombo:
		return "combo"
	case OperandLiteral:
		return "literal"
	case OperandIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// ComboString renders a combo operand the way the disassembler prints it,
// i.e. register names for 4-6.
func ComboString(operand byte) string {
	switch {
	case operand <= 3:
		return fmt.Sprintf("%d", operand)
	case operand <= MaxComboOperand:
		return RegisterNames[operand-4]
	default:
		return fmt.Sprintf("?%d", operand)
	}
}

// Format renders the operand according to its type.
func (ot OperandType) Format(operand byte) string {
	switch ot {
	case OperandCombo:
		return ComboString(operand)
	case OperandLiteral:
		return fmt.Sprintf("%d", operand)
	default:
		return ""
	}
}
