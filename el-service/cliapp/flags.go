package cliapp

import (
	"fmt"
	"reflect"

	"github.com/urfave/cli/v2"
)

// ProtectFlags ensures that no flags are safe to Apply() flag sets to without accidental flag-value mutations.
// ProtectFlags panics if any of the flags are not flags that can be cloned.
func ProtectFlags(flags []cli.Flag) []cli.Flag {
	out := make([]cli.Flag, 0, len(flags))
	for _, f := range flags {
		fCopy, err := cloneFlag(f)
		if err != nil {
			panic(fmt.Errorf("failed to clone flag %q: %w", f.Names()[0], err))
		}
		out = append(out, fCopy)
	}
	return out
}

// cloneFlag returns a shallow copy of a urfave flag.
// Flag values are set on the flag struct when the flag is applied, so a copy per app
// keeps repeated runs (e.g. tests) from seeing each other's values.
func cloneFlag(f cli.Flag) (cli.Flag, error) {
	v := reflect.ValueOf(f)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("unrecognized flag type %T", f)
	}
	cp := reflect.New(v.Elem().Type())
	cp.Elem().Set(v.Elem())
	out, ok := cp.Interface().(cli.Flag)
	if !ok {
		return nil, fmt.Errorf("copy of %T is not a flag", f)
	}
	return out, nil
}
