package interp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxCommands is the number of "+cmd" arguments Vim accepts.
const MaxCommands = 10

// ErrTooManyCommands indicates an invocation exceeds MaxCommands.
var ErrTooManyCommands = errors.New("too many startup commands")

// Mode selects the entry point the driver script runs.
type Mode int

const (
	ModeTest Mode = iota
	ModeBench
	ModeGenerate
)

// Entry returns the driver-script function for the mode.
func (m Mode) Entry() string {
	switch m {
	case ModeBench:
		return "BenchSyn"
	case ModeGenerate:
		return "GenSyn"
	default:
		return "Test"
	}
}

func (m Mode) String() string {
	switch m {
	case ModeBench:
		return "bench-syn"
	case ModeGenerate:
		return "gen-syn"
	default:
		return "test"
	}
}

// Var is a global variable set before the entry point runs. Value is a
// string or an int.
type Var struct {
	Name  string
	Value any
}

// Invocation is a typed interpreter command line.
type Invocation struct {
	Binary string
	Flags  []string

	// PackPath and RuntimePath entries are prepended to 'packpath' and
	// 'runtimepath'.
	PackPath    []string
	RuntimePath []string

	// Startup commands run after the search path is set.
	Startup []string

	Vars   []Var
	Script string
	Entry  string

	// File is opened as the current buffer.
	File string
}

// SetVar sets or replaces a variable, keeping first-set order.
func (inv *Invocation) SetVar(name string, value any) {
	for i := range inv.Vars {
		if inv.Vars[i].Name == name {
			inv.Vars[i].Value = value
			return
		}
	}
	inv.Vars = append(inv.Vars, Var{Name: name, Value: value})
}

// Commands returns the ordered startup command sequence.
func (inv *Invocation) Commands() []string {
	var cmds []string

	var set []string
	for _, p := range inv.PackPath {
		set = append(set, "packpath^="+escapeOption(p))
	}
	for _, p := range inv.RuntimePath {
		set = append(set, "rtp^="+escapeOption(p))
	}
	if len(set) > 0 {
		cmds = append(cmds, "set "+strings.Join(set, " "))
	}

	cmds = append(cmds, inv.Startup...)

	if len(inv.Vars) > 0 {
		lets := make([]string, len(inv.Vars))
		for i, v := range inv.Vars {
			lets[i] = fmt.Sprintf("let g:%s = %s", v.Name, literal(v.Value))
		}
		cmds = append(cmds, strings.Join(lets, " | "))
	}

	if inv.Script != "" {
		cmds = append(cmds, "source "+escapeFile(inv.Script))
	}
	if inv.Entry != "" {
		cmds = append(cmds, "call "+inv.Entry+"()")
	}
	return cmds
}

// Args renders the argument vector, excluding the binary.
func (inv *Invocation) Args() ([]string, error) {
	cmds := inv.Commands()
	if len(cmds) > MaxCommands {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyCommands, len(cmds), MaxCommands)
	}

	args := make([]string, 0, len(inv.Flags)+len(cmds)+1)
	args = append(args, inv.Flags...)
	for _, c := range cmds {
		args = append(args, "+"+c)
	}
	if inv.File != "" {
		args = append(args, inv.File)
	}
	return args, nil
}

// literal renders a value as a Vim script expression.
func literal(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(x), "'", "''") + "'"
	}
}

// escapeOption escapes a value for :set. A comma inside a list option entry
// needs a doubled backslash, one for :set and one for the option.
func escapeOption(s string) string {
	r := strings.NewReplacer(`\`, `\\`, " ", `\ `, "|", `\|`, `"`, `\"`, ",", `\\,`)
	return r.Replace(s)
}

// escapeFile escapes a file name for an Ex command argument.
func escapeFile(s string) string {
	r := strings.NewReplacer(`\`, `\\`, " ", `\ `, "|", `\|`, "%", `\%`, "#", `\#`)
	return r.Replace(s)
}
