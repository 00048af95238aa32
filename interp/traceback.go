package interp

import "github.com/scostello/monty-go/program"

// lineFor resolves pc to a source line using code's half-open LineEntry
// table, mirroring how a real line-table-based tracer avoids storing a line
// number per instruction.
func lineFor(code *program.CodeObject, pc int) int {
	line := 0
	for _, e := range code.Lines {
		if e.StartPC > pc {
			break
		}
		line = e.Line
	}
	return line
}
