// builtins.go implements the host-provided operations of §4.F. Builtins are
// consulted first in CALL's resolution order (§4.E): a name matching this
// table is never shadowed by a user function of the same name.
package vm

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fallen/vm/value"
)

type builtinFunc func(vm *VM, ip int, args []value.Value) (value.Value, error)

var builtins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		"write":         builtinWrite,
		"enter":         builtinEnter,
		"conv_int":      builtinConvInt,
		"conv_float":    builtinConvFloat,
		"conv_bool":     builtinConvBool,
		"try_conv_int":  builtinTryConv(builtinConvInt),
		"try_conv_float": builtinTryConv(builtinConvFloat),
		"try_conv_bool": builtinTryConv(builtinConvBool),
		"amount":        builtinAmount,
		"del":           builtinDel,
		"save":          builtinSave,
		"change":        builtinChange,
		"read":          builtinRead,
	}
}

func builtinWrite(vm *VM, ip int, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), newRuntimeError(ip, "write() takes 1 argument, got %d", len(args))
	}
	fmt.Fprintln(vm.stdout, args[0].Repr())
	return value.Null(), nil
}

func builtinEnter(vm *VM, ip int, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.KindStr {
		return value.Null(), newRuntimeError(ip, "enter(prompt) expects a Str argument")
	}
	fmt.Fprint(vm.stdout, args[0].Str)
	line, err := bufio.NewReader(vm.stdin).ReadString('\n')
	if err != nil && line == "" {
		return value.Null(), newRuntimeError(ip, "enter(): %s", err)
	}
	return value.Str(strings.TrimRight(line, "\r\n")), nil
}

func builtinConvInt(vm *VM, ip int, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), newRuntimeError(ip, "conv_int() takes 1 argument, got %d", len(args))
	}
	switch a := args[0]; a.Kind {
	case value.KindInt:
		return a, nil
	case value.KindFloat:
		return value.Int(int64(a.Float)), nil
	case value.KindStr:
		n, err := strconv.ParseInt(strings.TrimSpace(a.Str), 10, 64)
		if err != nil {
			return value.Null(), newRuntimeError(ip, "Cannot convert to Int: %q", a.Str)
		}
		return value.Int(n), nil
	default:
		return value.Null(), newRuntimeError(ip, "Cannot convert to Int: %s", args[0].Repr())
	}
}

func builtinConvFloat(vm *VM, ip int, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), newRuntimeError(ip, "conv_float() takes 1 argument, got %d", len(args))
	}
	switch a := args[0]; a.Kind {
	case value.KindFloat:
		return a, nil
	case value.KindInt:
		return value.Float(float64(a.Int)), nil
	case value.KindStr:
		f, err := strconv.ParseFloat(strings.TrimSpace(a.Str), 64)
		if err != nil {
			return value.Null(), newRuntimeError(ip, "Cannot convert to Float: %q", a.Str)
		}
		return value.Float(f), nil
	default:
		return value.Null(), newRuntimeError(ip, "Cannot convert to Float: %s", args[0].Repr())
	}
}

func builtinConvBool(vm *VM, ip int, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), newRuntimeError(ip, "conv_bool() takes 1 argument, got %d", len(args))
	}
	switch a := args[0]; a.Kind {
	case value.KindBool:
		return a, nil
	case value.KindInt:
		return value.Bool(a.Int != 0), nil
	case value.KindFloat:
		return value.Bool(a.Float != 0), nil
	case value.KindStr:
		switch a.Str {
		case "true":
			return value.Bool(true), nil
		case "false":
			return value.Bool(false), nil
		default:
			return value.Null(), newRuntimeError(ip, "Cannot convert to Bool: %q", a.Str)
		}
	default:
		return value.Null(), newRuntimeError(ip, "Cannot convert to Bool: %s", args[0].Repr())
	}
}

// builtinTryConv adapts a strict conv_* builtin into its try_conv_* form
// (§4.F): same conversion, but failure returns Null instead of propagating
// a RuntimeError. This is the only local-recovery mechanism in Fallen (§7).
func builtinTryConv(strict builtinFunc) builtinFunc {
	return func(vm *VM, ip int, args []value.Value) (value.Value, error) {
		v, err := strict(vm, ip, args)
		if err != nil {
			return value.Null(), nil
		}
		return v, nil
	}
}

// builtinAmount is the CALL-path fallback for amount() (DESIGN.md #9); it
// defers to the same lengthOf the compiler's dedicated LEN opcode uses, so
// the two paths can never disagree on what "length" means for a Str.
func builtinAmount(vm *VM, ip int, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), newRuntimeError(ip, "amount() takes 1 argument, got %d", len(args))
	}
	n, err := lengthOf(args[0])
	if err != nil {
		return value.Null(), wrapIP(err, ip)
	}
	return value.Int(n), nil
}

func builtinDel(vm *VM, ip int, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.KindList {
		return value.Null(), newRuntimeError(ip, "del() expects a List argument")
	}
	list := args[0].List
	n := len(list.Elements)
	if n == 0 {
		return value.Null(), newRuntimeError(ip, "del() on an empty list")
	}
	last := list.Elements[n-1]
	list.Elements = list.Elements[:n-1]
	return last, nil
}

func (vm *VM) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(vm.programDir, path)
}

func builtinSave(vm *VM, ip int, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.KindStr || args[1].Kind != value.KindStr {
		return value.Null(), newRuntimeError(ip, "save(path, text) expects two Str arguments")
	}
	path := vm.resolvePath(args[0].Str)
	if err := os.WriteFile(path, []byte(args[1].Str), 0o644); err != nil {
		return value.Null(), newRuntimeError(ip, "save(): %s", err)
	}
	return value.Null(), nil
}

func builtinChange(vm *VM, ip int, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.KindStr || args[1].Kind != value.KindStr {
		return value.Null(), newRuntimeError(ip, "change(path, text) expects two Str arguments")
	}
	path := vm.resolvePath(args[0].Str)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return value.Null(), newRuntimeError(ip, "change(): %s", err)
	}
	defer f.Close()
	if _, err := f.WriteString(args[1].Str); err != nil {
		return value.Null(), newRuntimeError(ip, "change(): %s", err)
	}
	return value.Null(), nil
}

func builtinRead(vm *VM, ip int, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.KindStr {
		return value.Null(), newRuntimeError(ip, "read(path) expects a Str argument")
	}
	path := vm.resolvePath(args[0].Str)
	data, err := os.ReadFile(path)
	if err != nil {
		return value.Null(), newRuntimeError(ip, "read(): %s", err)
	}
	return value.Str(string(data)), nil
}
