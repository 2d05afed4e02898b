package gateway

// TrapCode is written to a lane's trap word when execution aborts.
// Zero means no trap.
type TrapCode uint32

const (
	TrapNone TrapCode = iota
	TrapUnreachable
	TrapDivByZero
	TrapIntOverflow
	TrapStackOverflow
	TrapInvalidBlock
	TrapInvalidConversion
	TrapUnsupported
	TrapRecursionUnavailable
)

var trapNames = [...]string{
	TrapNone:                 "none",
	TrapUnreachable:          "unreachable",
	TrapDivByZero:            "integer divide by zero",
	TrapIntOverflow:          "integer overflow",
	TrapStackOverflow:        "stack overflow",
	TrapInvalidBlock:         "invalid block id",
	TrapInvalidConversion:    "invalid conversion to integer",
	TrapUnsupported:          "unsupported operation",
	TrapRecursionUnavailable: "recursion unavailable in direct call",
}

func (c TrapCode) String() string {
	if int(c) < len(trapNames) {
		return trapNames[c]
	}
	return "unknown trap"
}
