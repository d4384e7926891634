// vm.go implements the frame-stacked interpreter (§4.E): instruction
// dispatch, CALL resolution (builtins before user functions), the loop-exit
// and for-loop cursor machinery, short-circuit-friendly conditional jumps,
// and RuntimeError propagation with accumulated stack traces. The VM is the
// part of the pipeline with no teacher analog at all — informatter-nilan's
// vm.go only ever implemented OP_CONSTANT/OP_END — so the frame/dispatch
// shape here is built directly from SPEC_FULL.md §4.E rather than adapted.
package vm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fallen/compiler"
	"fallen/vm/value"
)

// VM is the single runtime environment for a process (§5: "one VM per
// process, one frame stack, one module registry").
type VM struct {
	modules map[string]*module

	// unitImports resolves a name a unit has imported back to the bytecode
	// unit that actually defines it, for CALL dispatch across a module
	// boundary (§4.E: "for imported modules, [the function table] of the
	// module's loaded unit"). Keyed by the importing unit, not by frame,
	// since any function defined in that unit — not only its main body —
	// must see names the unit's own top-level IMPORT brought in.
	unitImports map[*compiler.Bytecode]map[string]*compiler.Bytecode

	stdout io.Writer
	stdin  io.Reader

	traceSink io.Writer
	trace     bool

	programDir string
	stdlibDir  string
}

// New creates a VM rooted at programDir, the directory import paths and
// file builtins are resolved relative to (§6).
func New(programDir string) *VM {
	return &VM{
		modules:     map[string]*module{},
		unitImports: map[*compiler.Bytecode]map[string]*compiler.Bytecode{},
		stdout:     os.Stdout,
		stdin:      os.Stdin,
		traceSink:  os.Stderr,
		programDir: programDir,
	}
}

func (vm *VM) SetStdout(w io.Writer)     { vm.stdout = w }
func (vm *VM) SetStdin(r io.Reader)      { vm.stdin = r }
func (vm *VM) SetTraceSink(w io.Writer)  { vm.traceSink = w }
func (vm *VM) SetStdlibDir(dir string)   { vm.stdlibDir = dir }
func (vm *VM) SetTrace(on bool)          { vm.trace = on }

// Run executes unit's main body to completion, starting a fresh `<main>`
// frame (§4.E: "The top frame runs until it issues RETURN... or the unit
// HALTs").
func (vm *VM) Run(unit *compiler.Bytecode, file string) error {
	frame := newFrame(unit, "<main>", file)
	return vm.runEntry(frame, unit, file)
}

// RunSession executes unit's main body using env as the frame's
// environment instead of a fresh one, so names bound by one REPL entry
// stay visible to the next (SPEC_FULL.md Part D.4). env is mutated in
// place; pass the same map back in on every call for one session.
func (vm *VM) RunSession(unit *compiler.Bytecode, file string, env map[string]value.Value) error {
	frame := newFrame(unit, "<main>", file)
	frame.env = env
	return vm.runEntry(frame, unit, file)
}

// runEntry registers the entry-point file in the module registry, in state
// `loading`, before executing it — the same way importModule registers a
// nested import before running it (vm/module.go). Without this, an import
// cycle that loops back to the entry file finds no registry entry for it
// and re-reads/re-compiles/re-executes it from scratch, violating §4.E's
// cycle-safety invariant (demonstrated by §8 scenario 6).
func (vm *VM) runEntry(frame *Frame, unit *compiler.Bytecode, file string) error {
	m := &module{path: file, state: loading, exports: map[string]value.Value{}, funcExports: map[string]bool{}, unit: unit}
	vm.modules[file] = m

	if err := vm.runFrame(frame); err != nil {
		return err
	}

	m.exports = computeExports(unit, frame.env)
	for name := range m.exports {
		if _, isFunc := unit.Functions[name]; isFunc {
			m.funcExports[name] = true
		}
	}
	m.state = loaded
	return nil
}

// runFrame dispatches instructions in frame until HALT or RETURN. A
// RuntimeError returned here has this frame's (name, file, line) already
// appended to its trace by the time it reaches the caller.
func (vm *VM) runFrame(frame *Frame) error {
	instructions := frame.unit.Instructions
	for frame.ip < len(instructions) {
		ip := frame.ip
		op := compiler.Opcode(instructions[ip])
		def, err := compiler.Get(op)
		if err != nil {
			return vm.annotate(frame, newRuntimeError(ip, "%s", err))
		}
		operands, width := compiler.ReadOperands(def, instructions[ip+1:])
		frame.line = frame.unit.Lines[ip]

		if vm.trace {
			fmt.Fprintf(vm.traceSink, "TRACE ip=%04x (%s, %v) stack=%d\n", ip, def.Name, operands, frame.depth())
		}

		frame.ip += 1 + width

		halted, returned, err := vm.dispatch(frame, ip, op, operands)
		if err != nil {
			return vm.annotate(frame, err)
		}
		if halted {
			return nil
		}
		if returned {
			return nil
		}
	}
	return nil
}

// annotate appends this frame's trace entry the first time a RuntimeError
// passes through it, whether raised here or propagated from a nested call.
func (vm *VM) annotate(frame *Frame, err error) error {
	if re, ok := err.(*RuntimeError); ok {
		re.Trace = append(re.Trace, traceEntry{FuncName: frame.funcName, File: frame.file, Line: frame.line})
		return re
	}
	return err
}

// dispatch executes a single decoded instruction. The returned bools are
// (halted, returned): both end runFrame's loop, but a return additionally
// leaves the function's result on top of this frame's stack, where invoke
// pops it and pushes it onto the caller's stack.
func (vm *VM) dispatch(frame *Frame, ip int, op compiler.Opcode, operands []int) (halted bool, returned bool, err error) {
	switch op {
	case compiler.LOAD_CONST:
		frame.push(frame.unit.ConstantsPool[operands[0]])
	case compiler.LOAD_NULL:
		frame.push(value.Null())
	case compiler.LOAD_NAME:
		name := frame.unit.Names[operands[0]]
		v, ok := frame.env[name]
		if !ok {
			return false, false, newRuntimeError(ip, "undefined variable %q", name)
		}
		frame.push(v)
	case compiler.STORE_NAME:
		name := frame.unit.Names[operands[0]]
		marker := compiler.Marker(operands[1])
		v := frame.pop()
		if marker != compiler.MarkerAny && v.Kind != marker.Kind() {
			return false, false, newRuntimeError(ip, "type error: cannot assign %s to %s %q", v.Kind, marker, name)
		}
		frame.env[name] = v
	case compiler.POP:
		frame.pop()

	case compiler.ADD:
		return false, false, vm.arith(frame, ip, op)
	case compiler.SUB, compiler.MUL, compiler.DIV:
		return false, false, vm.arith(frame, ip, op)
	case compiler.NEG:
		v := frame.pop()
		switch v.Kind {
		case value.KindInt:
			frame.push(value.Int(-v.Int))
		case value.KindFloat:
			frame.push(value.Float(-v.Float))
		default:
			return false, false, newRuntimeError(ip, "cannot negate %s", v.Kind)
		}
	case compiler.EQ:
		b, a := frame.pop(), frame.pop()
		frame.push(value.Bool(value.Equal(a, b)))
	case compiler.NE:
		b, a := frame.pop(), frame.pop()
		frame.push(value.Bool(!value.Equal(a, b)))
	case compiler.LT, compiler.LE, compiler.GT, compiler.GE:
		return false, false, vm.compare(frame, ip, op)
	case compiler.NOT:
		v := frame.pop()
		if v.Kind != value.KindBool {
			return false, false, newRuntimeError(ip, "'not' expects Bool, got %s", v.Kind)
		}
		frame.push(value.Bool(!v.Bool))

	case compiler.JUMP:
		frame.ip = operands[0]
	case compiler.JUMP_IF_FALSE:
		v := frame.peek()
		if v.Kind != value.KindBool {
			return false, false, newRuntimeError(ip, "condition must be Bool, got %s", v.Kind)
		}
		if !v.Bool {
			frame.ip = operands[0]
		} else {
			frame.pop()
		}
	case compiler.JUMP_IF_TRUE:
		v := frame.peek()
		if v.Kind != value.KindBool {
			return false, false, newRuntimeError(ip, "condition must be Bool, got %s", v.Kind)
		}
		if v.Bool {
			frame.ip = operands[0]
		} else {
			frame.pop()
		}
	case compiler.HALT:
		return true, false, nil

	case compiler.BUILD_LIST:
		n := operands[0]
		elems := make([]value.Value, n)
		copy(elems, frame.stack[len(frame.stack)-n:])
		frame.stack = frame.stack[:len(frame.stack)-n]
		frame.push(value.FromList(value.NewList(elems)))
	case compiler.BUILD_DICT:
		n := operands[0]
		d := value.NewDict()
		base := len(frame.stack) - 2*n
		pairs := frame.stack[base:]
		for i := 0; i < n; i++ {
			k := pairs[2*i]
			v := pairs[2*i+1]
			if k.Kind != value.KindStr {
				return false, false, newRuntimeError(ip, "dict keys must be Str, got %s", k.Kind)
			}
			d.Set(k.Str, v)
		}
		frame.stack = frame.stack[:base]
		frame.push(value.FromDict(d))
	case compiler.INDEX_GET:
		idx, container := frame.pop(), frame.pop()
		v, err := indexGet(container, idx)
		if err != nil {
			return false, false, wrapIP(err, ip)
		}
		frame.push(v)
	case compiler.INDEX_SET:
		v, idx, container := frame.pop(), frame.pop(), frame.pop()
		if err := indexSet(container, idx, v); err != nil {
			return false, false, wrapIP(err, ip)
		}
	case compiler.LIST_APPEND:
		v, container := frame.pop(), frame.pop()
		if container.Kind != value.KindList {
			return false, false, newRuntimeError(ip, "add() target is not a List")
		}
		container.List.Elements = append(container.List.Elements, v)
	case compiler.LIST_INSERT:
		v, idxVal, container := frame.pop(), frame.pop(), frame.pop()
		if container.Kind != value.KindList || idxVal.Kind != value.KindInt {
			return false, false, newRuntimeError(ip, "insert() expects a List and an Int index")
		}
		i := int(idxVal.Int)
		elems := container.List.Elements
		if i < 0 || i > len(elems) {
			return false, false, newRuntimeError(ip, "insert() index %d out of range", i)
		}
		elems = append(elems, value.Value{})
		copy(elems[i+1:], elems[i:])
		elems[i] = v
		container.List.Elements = elems
	case compiler.REMOVE_AT:
		idx, container := frame.pop(), frame.pop()
		if err := removeAt(container, idx); err != nil {
			return false, false, wrapIP(err, ip)
		}
	case compiler.LEN:
		v := frame.pop()
		n, err := lengthOf(v)
		if err != nil {
			return false, false, wrapIP(err, ip)
		}
		frame.push(value.Int(n))

	case compiler.CALL:
		return false, false, vm.call(frame, ip, operands[0], operands[1])
	case compiler.RETURN:
		return false, true, nil

	case compiler.LOOP_PUSH:
		frame.pushLoop(operands[0], operands[1])
	case compiler.LOOP_POP:
		frame.popLoop()
	case compiler.BREAK:
		rec := frame.currentLoop()
		if rec.hasCursor {
			frame.popCursor()
		}
		frame.ip = rec.breakTarget
	case compiler.CONTINUE:
		frame.ip = frame.currentLoop().continueTarget
	case compiler.FOR_START:
		v := frame.pop()
		elems, err := iterableElements(v)
		if err != nil {
			return false, false, wrapIP(err, ip)
		}
		frame.pushCursor(&iterCursor{elements: elems})
		frame.pendingForCursor = true
	case compiler.FOR_NEXT:
		cursor := frame.currentCursor()
		if cursor.index >= len(cursor.elements) {
			frame.popCursor()
			frame.ip = operands[0]
		} else {
			name := frame.unit.Names[operands[1]]
			frame.env[name] = cursor.elements[cursor.index]
			cursor.index++
		}

	case compiler.IMPORT:
		return false, false, vm.doImport(frame, ip, operands[0])
	case compiler.EXPORT:
		// Export bookkeeping (unit.Exports) already happened at compile
		// time; at runtime this is a no-op marker instruction.

	case compiler.TRACE_ON:
		vm.trace = true
	case compiler.TRACE_OFF:
		vm.trace = false

	default:
		return false, false, newRuntimeError(ip, "unknown opcode %d", op)
	}
	return false, false, nil
}

func wrapIP(err error, ip int) error {
	if re, ok := err.(*RuntimeError); ok {
		re.IP = ip
	}
	return err
}

func (vm *VM) arith(frame *Frame, ip int, op compiler.Opcode) error {
	b, a := frame.pop(), frame.pop()
	if op == compiler.ADD && a.Kind == value.KindStr && b.Kind == value.KindStr {
		frame.push(value.Str(a.Str + b.Str))
		return nil
	}
	af, aIsFloat, aok := numeric(a)
	bf, bIsFloat, bok := numeric(b)
	if !aok || !bok {
		return newRuntimeError(ip, "arithmetic expects Int/Float, got %s and %s", a.Kind, b.Kind)
	}
	if op == compiler.DIV {
		if bf == 0 {
			return newRuntimeError(ip, "division by zero")
		}
	}
	if !aIsFloat && !bIsFloat {
		x, y := a.Int, b.Int
		switch op {
		case compiler.ADD:
			frame.push(value.Int(x + y))
		case compiler.SUB:
			frame.push(value.Int(x - y))
		case compiler.MUL:
			frame.push(value.Int(x * y))
		case compiler.DIV:
			frame.push(value.Int(x / y))
		}
		return nil
	}
	switch op {
	case compiler.ADD:
		frame.push(value.Float(af + bf))
	case compiler.SUB:
		frame.push(value.Float(af - bf))
	case compiler.MUL:
		frame.push(value.Float(af * bf))
	case compiler.DIV:
		frame.push(value.Float(af / bf))
	}
	return nil
}

func (vm *VM) compare(frame *Frame, ip int, op compiler.Opcode) error {
	b, a := frame.pop(), frame.pop()
	af, aIsFloat, aok := numeric(a)
	bf, bIsFloat, bok := numeric(b)
	if !aok || !bok {
		return newRuntimeError(ip, "ordering expects Int/Float, got %s and %s", a.Kind, b.Kind)
	}
	var result bool
	if !aIsFloat && !bIsFloat {
		x, y := a.Int, b.Int
		switch op {
		case compiler.LT:
			result = x < y
		case compiler.LE:
			result = x <= y
		case compiler.GT:
			result = x > y
		case compiler.GE:
			result = x >= y
		}
	} else {
		switch op {
		case compiler.LT:
			result = af < bf
		case compiler.LE:
			result = af <= bf
		case compiler.GT:
			result = af > bf
		case compiler.GE:
			result = af >= bf
		}
	}
	frame.push(value.Bool(result))
	return nil
}

func numeric(v value.Value) (f float64, isFloat bool, ok bool) {
	switch v.Kind {
	case value.KindInt:
		return float64(v.Int), false, true
	case value.KindFloat:
		return v.Float, true, true
	default:
		return 0, false, false
	}
}

func indexGet(container, idx value.Value) (value.Value, error) {
	switch container.Kind {
	case value.KindList:
		if idx.Kind != value.KindInt {
			return value.Value{}, newRuntimeError(0, "list index must be Int, got %s", idx.Kind)
		}
		elems := container.List.Elements
		if idx.Int < 0 || idx.Int >= int64(len(elems)) {
			return value.Value{}, newRuntimeError(0, "list index %d out of range", idx.Int)
		}
		return elems[idx.Int], nil
	case value.KindDict:
		if idx.Kind != value.KindStr {
			return value.Value{}, newRuntimeError(0, "dict key must be Str, got %s", idx.Kind)
		}
		v, ok := container.Dict.Get(idx.Str)
		if !ok {
			return value.Value{}, newRuntimeError(0, "no such key %q", idx.Str)
		}
		return v, nil
	case value.KindStr:
		if idx.Kind != value.KindInt {
			return value.Value{}, newRuntimeError(0, "string index must be Int, got %s", idx.Kind)
		}
		runes := []rune(container.Str)
		if idx.Int < 0 || idx.Int >= int64(len(runes)) {
			return value.Value{}, newRuntimeError(0, "string index %d out of range", idx.Int)
		}
		return value.Str(string(runes[idx.Int])), nil
	default:
		return value.Value{}, newRuntimeError(0, "cannot index into %s", container.Kind)
	}
}

func indexSet(container, idx, v value.Value) error {
	switch container.Kind {
	case value.KindList:
		if idx.Kind != value.KindInt {
			return newRuntimeError(0, "list index must be Int, got %s", idx.Kind)
		}
		elems := container.List.Elements
		if idx.Int < 0 || idx.Int >= int64(len(elems)) {
			return newRuntimeError(0, "list index %d out of range", idx.Int)
		}
		elems[idx.Int] = v
		return nil
	case value.KindDict:
		if idx.Kind != value.KindStr {
			return newRuntimeError(0, "dict key must be Str, got %s", idx.Kind)
		}
		container.Dict.Set(idx.Str, v)
		return nil
	default:
		return newRuntimeError(0, "cannot set index on %s", container.Kind)
	}
}

func removeAt(container, idx value.Value) error {
	switch container.Kind {
	case value.KindList:
		if idx.Kind != value.KindInt {
			return newRuntimeError(0, "list index must be Int, got %s", idx.Kind)
		}
		elems := container.List.Elements
		if idx.Int < 0 || idx.Int >= int64(len(elems)) {
			return newRuntimeError(0, "list index %d out of range", idx.Int)
		}
		container.List.Elements = append(elems[:idx.Int], elems[idx.Int+1:]...)
		return nil
	case value.KindDict:
		if idx.Kind != value.KindStr {
			return newRuntimeError(0, "dict key must be Str, got %s", idx.Kind)
		}
		if !container.Dict.Remove(idx.Str) {
			return newRuntimeError(0, "no such key %q", idx.Str)
		}
		return nil
	default:
		return newRuntimeError(0, "remove() expects a List or Dict")
	}
}

func lengthOf(v value.Value) (int64, error) {
	switch v.Kind {
	case value.KindStr:
		return int64(len([]rune(v.Str))), nil
	case value.KindList:
		return int64(len(v.List.Elements)), nil
	case value.KindDict:
		return int64(v.Dict.Len()), nil
	default:
		return 0, newRuntimeError(0, "amount() expects Str, List or Dict, got %s", v.Kind)
	}
}

func iterableElements(v value.Value) ([]value.Value, error) {
	switch v.Kind {
	case value.KindList:
		out := make([]value.Value, len(v.List.Elements))
		copy(out, v.List.Elements)
		return out, nil
	case value.KindDict:
		keys := v.Dict.Keys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i] = value.Str(k)
		}
		return out, nil
	case value.KindStr:
		runes := []rune(v.Str)
		out := make([]value.Value, len(runes))
		for i, r := range runes {
			out[i] = value.Str(string(r))
		}
		return out, nil
	default:
		return nil, newRuntimeError(0, "for loop expects a List, Dict or Str, got %s", v.Kind)
	}
}

// call implements CALL's resolution order (§4.E): builtins first, then the
// current unit's function table, then functions this frame's unit imported
// from another module's unit.
func (vm *VM) call(frame *Frame, ip int, nameIdx, argc int) error {
	name := frame.unit.Names[nameIdx]

	if builtin, ok := builtins[name]; ok {
		args := popN(frame, argc)
		result, err := builtin(vm, ip, args)
		if err != nil {
			return err
		}
		frame.push(result)
		return nil
	}

	if info, ok := frame.unit.Functions[name]; ok {
		return vm.invoke(frame, ip, frame.unit, info, frame.file, argc)
	}

	if imported, ok := vm.unitImports[frame.unit]; ok {
		if foreignUnit, ok := imported[name]; ok {
			info := foreignUnit.Functions[name]
			file := frame.file
			for _, m := range vm.modules {
				if m.unit == foreignUnit {
					file = m.path
					break
				}
			}
			return vm.invoke(frame, ip, foreignUnit, info, file, argc)
		}
	}

	return newRuntimeError(ip, "undefined function %q", name)
}

func popN(frame *Frame, n int) []value.Value {
	base := len(frame.stack) - n
	args := make([]value.Value, n)
	copy(args, frame.stack[base:])
	frame.stack = frame.stack[:base]
	return args
}

func (vm *VM) invoke(caller *Frame, ip int, unit *compiler.Bytecode, info compiler.FunctionInfo, file string, argc int) error {
	if argc != len(info.ParamNames) {
		return newRuntimeError(ip, "%s() expects %d argument(s), got %d", info.Name, len(info.ParamNames), argc)
	}
	args := popN(caller, argc)
	for i, v := range args {
		marker := info.Markers[i]
		if marker != compiler.MarkerAny && v.Kind != marker.Kind() {
			return newRuntimeError(ip, "type error: argument %q of %s() expects %s, got %s", info.ParamNames[i], info.Name, marker, v.Kind)
		}
	}

	callee := newFrame(unit, info.Name, file)
	callee.ip = info.EntryPoint
	for i, name := range info.ParamNames {
		callee.env[name] = args[i]
	}

	if err := vm.runFrame(callee); err != nil {
		return err
	}
	if len(callee.stack) == 0 {
		caller.push(value.Null())
	} else {
		caller.push(callee.pop())
	}
	return nil
}

// doImport implements the IMPORT opcode (§4.E): resolve, consult the
// registry, and expose the resulting export set to the importing frame.
func (vm *VM) doImport(frame *Frame, ip int, pathConstIdx int) error {
	pathValue := frame.unit.ConstantsPool[pathConstIdx]
	importerDir := filepath.Dir(frame.file)
	if importerDir == "." {
		importerDir = vm.programDir
	}
	m, err := vm.importModule(importerDir, pathValue.Str, ip)
	if err != nil {
		return err
	}
	for name, v := range m.exports {
		if m.funcExports[name] {
			if vm.unitImports[frame.unit] == nil {
				vm.unitImports[frame.unit] = map[string]*compiler.Bytecode{}
			}
			vm.unitImports[frame.unit][name] = m.unit
			continue
		}
		frame.env[name] = v
	}
	return nil
}
