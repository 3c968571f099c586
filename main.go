// This is the main-driver for our compiler.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/skx/c64c/compiler"
)

func main() {

	//
	// Look for flags.
	//
	debug := flag.Bool("debug", false, "Log debug output as the pipeline runs.")
	compile := flag.Bool("compile", false, "Assemble the output, via invoking gcc.")
	program := flag.String("filename", "a.out", "The binary to write, when -compile is given.")
	run := flag.Bool("run", false, "Run the binary, post-compile.")
	flag.Parse()

	//
	// If we're running we're also compiling.
	//
	if *run {
		*compile = true
	}

	//
	// Usage: compiler <input.c> [output.s]
	//
	args := flag.Args()
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintf(os.Stderr, "Usage: compiler <input.c> [output.s]\n")
		os.Exit(1)
	}

	input := args[0]
	output := "assembly.s"
	if len(args) == 2 {
		output = args[1]
	}

	src, err := os.ReadFile(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %s\n", input, err)
		os.Exit(1)
	}

	//
	// Create a compiler-object, with the program as input.
	//
	comp := compiler.New(string(src))

	//
	// Are we logging debug output?
	//
	if *debug {
		comp.SetDebug(true)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}

	//
	// Compile.
	//
	out, err := comp.Compile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error compiling %s: %s\n", input, err)
		os.Exit(1)
	}

	//
	// Write the generated assembly to the requested output file.
	//
	if err := os.WriteFile(output, []byte(out), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %s\n", output, err)
		os.Exit(1)
	}

	//
	// If we're not assembling the output, we're done.
	//
	if !*compile {
		return
	}

	//
	// Assemble via the system gcc, per the external-interface contract:
	// `gcc -m64 -o <bin> <asm>`.
	//
	gcc := exec.Command("gcc", "-m64", "-o", *program, output)
	gcc.Stdout = os.Stdout
	gcc.Stderr = os.Stderr
	if err := gcc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error launching gcc: %s\n", err)
		os.Exit(1)
	}

	//
	// Running the binary too?
	//
	if *run {
		exe := exec.Command(*program)
		exe.Stdout = os.Stdout
		exe.Stderr = os.Stderr
		if err := exe.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error launching %s: %s\n", *program, err)
			os.Exit(1)
		}
	}
}
