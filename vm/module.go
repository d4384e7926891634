// module.go implements the process-wide module registry (§4.E, §9): path
// resolution relative to the importing file's directory, the
// not-loaded/loading/loaded state machine that gives cycle safety, and the
// export-set computation run once a module finishes executing.
package vm

import (
	"os"
	"path/filepath"

	"fallen/compiler"
	"fallen/lexer"
	"fallen/parser"
	"fallen/vm/value"
)

type moduleState int

const (
	notLoaded moduleState = iota
	loading
	loaded
)

// module is one entry in the VM's registry: its compiled unit, its
// execution state, and the exports computed once it finishes running.
type module struct {
	path    string
	state   moduleState
	unit    *compiler.Bytecode
	exports map[string]value.Value
	// funcExports names the subset of exports that are functions, so the
	// importer's frame can route CALLs for them back to this module's unit.
	funcExports map[string]bool
}

// resolveImportPath turns an IMPORT path operand into an absolute path,
// relative to the importing unit's directory (§6), falling back to
// FALLEN_STDLIB (SPEC_FULL.md Part D.3) when that does not exist.
func (vm *VM) resolveImportPath(importerDir, importPath string) string {
	candidate := filepath.Join(importerDir, importPath)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	if vm.stdlibDir != "" {
		stdlibCandidate := filepath.Join(vm.stdlibDir, importPath)
		if _, err := os.Stat(stdlibCandidate); err == nil {
			return stdlibCandidate
		}
	}
	return candidate
}

// importModule implements the IMPORT opcode's module-registry consultation
// (§4.E). It returns the module record to pull exports from; a module
// already `loading` or `loaded` short-circuits without re-executing.
func (vm *VM) importModule(importerDir, importPath string, ip int) (*module, error) {
	path := vm.resolveImportPath(importerDir, importPath)

	if m, ok := vm.modules[path]; ok {
		return m, nil
	}

	m := &module{path: path, state: loading, exports: map[string]value.Value{}, funcExports: map[string]bool{}}
	vm.modules[path] = m

	source, err := os.ReadFile(path)
	if err != nil {
		return nil, &ImportError{Path: importPath, Inner: newRuntimeError(ip, "cannot read %q: %s", path, err)}
	}

	toks, err := lexer.New(string(source)).Scan()
	if err != nil {
		return nil, &ImportError{Path: importPath, Inner: err}
	}
	statements, err := parser.Make(toks).Parse()
	if err != nil {
		return nil, &ImportError{Path: importPath, Inner: err}
	}
	unit, err := compiler.Compile(statements)
	if err != nil {
		return nil, &ImportError{Path: importPath, Inner: err}
	}
	m.unit = unit

	frame := newFrame(unit, "<main>", path)
	if err := vm.runFrame(frame); err != nil {
		return nil, &ImportError{Path: importPath, Inner: err}
	}

	m.exports = computeExports(unit, frame.env)
	for name := range m.exports {
		if _, isFunc := unit.Functions[name]; isFunc {
			m.funcExports[name] = true
		}
	}
	m.state = loaded
	return m, nil
}

// computeExports implements §4.E's export-set rule: if the unit contains at
// least one `export` statement, its public set is exactly the exported
// names; otherwise every name in its environment not starting with `_`.
// The export list is unit.Exports, collected at compile time, so an
// `export` statement counts whether or not execution reaches it.
func computeExports(unit *compiler.Bytecode, env map[string]value.Value) map[string]value.Value {
	result := make(map[string]value.Value)
	if len(unit.Exports) > 0 {
		for _, name := range unit.Exports {
			if v, ok := env[name]; ok {
				result[name] = v
			} else if _, isFunc := unit.Functions[name]; isFunc {
				result[name] = value.Value{}
			}
		}
		return result
	}
	for name, v := range env {
		if len(name) > 0 && name[0] != '_' {
			result[name] = v
		}
	}
	for name := range unit.Functions {
		if len(name) > 0 && name[0] != '_' {
			result[name] = value.Value{}
		}
	}
	return result
}
