// disassemble.go renders a Bytecode unit's instruction stream as text, for
// the `build` CLI verb (SPEC_FULL.md Part D.2).
// Format follows the teacher's DiassembleBytecode convention
// ("OPCODE_NAME, operand: N"), extended over the full opcode set and
// prefixed with a 4-digit hex instruction pointer.
package compiler

import (
	"fmt"
	"strings"
)

// Disassemble renders every instruction in unit.Instructions, one per line.
func Disassemble(unit *Bytecode) string {
	var b strings.Builder
	ip := 0
	for ip < len(unit.Instructions) {
		op := Opcode(unit.Instructions[ip])
		def, err := Get(op)
		if err != nil {
			fmt.Fprintf(&b, "%04x ERROR: %s\n", ip, err)
			ip++
			continue
		}
		operands, width := ReadOperands(def, unit.Instructions[ip+1:])
		fmt.Fprintf(&b, "%04x %s\n", ip, formatInstruction(unit, def, operands))
		ip += 1 + width
	}
	return b.String()
}

func formatInstruction(unit *Bytecode, def *OpCodeDefinition, operands []int) string {
	if len(operands) == 0 {
		return def.Name
	}
	parts := make([]string, len(operands))
	for i, operand := range operands {
		parts[i] = fmt.Sprintf("operand: %d%s", operand, annotate(unit, def.Name, i, operand))
	}
	return def.Name + ", " + strings.Join(parts, ", ")
}

// annotate appends the human-readable referent of an index operand (a
// constant's repr, a name, a marker) so a `build` listing is legible without
// cross-referencing the constant/name tables by hand.
func annotate(unit *Bytecode, opName string, operandIndex int, operand int) string {
	switch opName {
	case "LOAD_CONST", "IMPORT":
		if operandIndex == 0 && operand < len(unit.ConstantsPool) {
			return fmt.Sprintf(" (%s)", unit.ConstantsPool[operand].Repr())
		}
	case "LOAD_NAME", "EXPORT":
		if operandIndex == 0 && operand < len(unit.Names) {
			return fmt.Sprintf(" (%s)", unit.Names[operand])
		}
	case "STORE_NAME":
		if operandIndex == 0 && operand < len(unit.Names) {
			return fmt.Sprintf(" (%s)", unit.Names[operand])
		}
		if operandIndex == 1 {
			return fmt.Sprintf(" (%s)", Marker(operand))
		}
	case "CALL":
		if operandIndex == 0 && operand < len(unit.Names) {
			return fmt.Sprintf(" (%s)", unit.Names[operand])
		}
	case "FOR_NEXT":
		if operandIndex == 1 && operand < len(unit.Names) {
			return fmt.Sprintf(" (%s)", unit.Names[operand])
		}
	}
	return ""
}
