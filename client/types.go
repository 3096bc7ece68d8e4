package client

import "time"

// SetCondition restricts when SET writes.
type SetCondition string

const (
	Always    SetCondition = ""
	IfMissing SetCondition = "NX"
	IfExists  SetCondition = "XX"
)

// SetOptions are the modifiers of SET. EX and PX are mutually exclusive, EX
// wins when both are set. Durations are rounded up to whole seconds and
// milliseconds.
type SetOptions struct {
	EX        time.Duration
	PX        time.Duration
	Condition SetCondition
}

type Bit int

const (
	Bit0 Bit = 0
	Bit1 Bit = 1
)

type BitOp string

const (
	BitAnd BitOp = "AND"
	BitOr  BitOp = "OR"
	BitXor BitOp = "XOR"
	BitNot BitOp = "NOT"
)

// Pivot places a LINSERT element relative to the pivot value.
type Pivot string

const (
	Before Pivot = "BEFORE"
	After  Pivot = "AFTER"
)

type MigrateMode string

const (
	MigrateMove    MigrateMode = ""
	MigrateCopy    MigrateMode = "COPY"
	MigrateReplace MigrateMode = "REPLACE"
)

// Range is an inclusive byte range. Negative offsets count from the end.
type Range struct {
	Start int64
	End   int64
}

type Pair struct {
	Key   string
	Value string
}

// ScanOptions are the MATCH and COUNT hints of the SCAN family. Zero values
// are left off the command.
type ScanOptions struct {
	Match string
	Count int64
}

// ScanPage is one page of a SCAN iteration. A Cursor of 0 ends it.
type ScanPage struct {
	Cursor uint64
	Keys   []string
}

// KeyValue is what a blocking pop yields: the list it popped from and the
// element.
type KeyValue struct {
	Key   string
	Value string
}

// roundUp counts d in whole units, rounding a partial unit up so a positive
// duration never becomes 0.
func roundUp(d, unit time.Duration) int64 {
	n := d / unit
	if d%unit > 0 {
		n++
	}

	return int64(n)
}
