// minic is the command-line front end for the compiler+VM core: it
// compiles a source file (or stdin) and either runs it to completion, or
// with -trace, prints a disassembly followed by one line per executed
// step, or with -disasm, prints only the disassembly.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chazu/minic/pkg/bytecode"
	"github.com/chazu/minic/pkg/compile"
	"github.com/chazu/minic/pkg/vm"
)

func main() {
	trace := flag.Bool("trace", false, "print a disassembly and one line per executed step")
	disasm := flag.Bool("disasm", false, "print the disassembly and exit without running")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: minic [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs a minic source file. Reads from stdin if file is omitted.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	source, err := readSource(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "minic: %v\n", err)
		os.Exit(1)
	}

	program, err := compile.Compile(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minic: %v\n", err)
		os.Exit(1)
	}

	if *disasm {
		fmt.Print(bytecode.Disassemble(program))
		return
	}

	if *trace {
		fmt.Print(bytecode.Disassemble(program))
		if err := runTraced(program); err != nil {
			fmt.Fprintf(os.Stderr, "minic: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(program); err != nil {
		fmt.Fprintf(os.Stderr, "minic: %v\n", err)
		os.Exit(1)
	}
}

func readSource(args []string) (string, error) {
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	if len(args) > 1 {
		return "", errors.New("at most one source file may be given")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}

func run(program *bytecode.Program) error {
	m := vm.New(program)
	result, hasValue, err := m.RunToEnd()
	if err != nil {
		return err
	}
	if hasValue {
		fmt.Println(result.String())
	}
	return nil
}

func runTraced(program *bytecode.Program) error {
	m := vm.New(program)
	for {
		step, err := m.Step()
		if err != nil {
			return err
		}
		if step.IPBefore < program.Len() {
			fmt.Fprintf(os.Stderr, "[%04d] %-24s sp=%d\n", step.IPBefore, bytecode.FormatInstruction(step.Instruction), len(step.Stack))
		}
		if step.Done {
			if step.HasValue {
				fmt.Println(step.Result.String())
			}
			return nil
		}
	}
}
