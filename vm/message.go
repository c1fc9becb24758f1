package vm

type MessageType int

const (
	_ MessageType = iota
	MsgDebug
	MsgOutput
	MsgJump
	MsgHalt
	MsgTrap
	MsgTimeout
	MsgReset
)

func (mt MessageType) String() string {
	switch mt {
	case MsgDebug:
		return "Debug"
	case MsgOutput:
		return "Output"
	case MsgJump:
		return "Jump"
	case MsgHalt:
		return "Halt"
	case MsgTrap:
		return "Trap"
	case MsgTimeout:
		return "Timeout"
	case MsgReset:
		return "Reset"
	default:
		return "Unknown"
	}
}

type Message struct {
	Type    MessageType
	PC      int // Pointer of the instruction that produced the message.
	Step    int
	Message string
}

func NewMessage(mt MessageType, pc, step int, msg string) Message {
	return Message{
		Type:    mt,
		PC:      pc,
		Step:    step,
		Message: msg,
	}
}
