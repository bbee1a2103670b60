// This is the main-driver for our compiler.

package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/skx/cc32/compiler"
	"github.com/skx/cc32/target"
)

func main() {

	//
	// Look for flags.
	//
	debug := flag.Bool("debug", false, "Insert debug \"stuff\" in our generated output.")
	out := flag.String("o", "", "Output filename (defaults to the input file with its extension replaced by .s).")
	targetName := flag.String("target", "", "Override the auto-detected platform (linux, freebsd, darwin).")
	flag.Parse()

	//
	// Ensure we have a single source file as our argument.
	//
	if len(flag.Args()) != 1 {
		fmt.Printf("Usage: cc32 <file.c>\n")
		os.Exit(1)
	}
	path := flag.Args()[0]

	//
	// Read the program.
	//
	src, err := ioutil.ReadFile(path)
	if err != nil {
		fmt.Printf("ERROR in %s: %s\n", path, err)
		os.Exit(1)
	}

	//
	// Gather the compiler options.
	//
	opts := []compiler.Option{compiler.WithDebug(*debug)}
	if *targetName != "" {
		cfg, terr := target.Parse(*targetName)
		if terr != nil {
			fmt.Printf("ERROR in %s: %s\n", path, terr)
			os.Exit(1)
		}
		opts = append(opts, compiler.WithTarget(cfg))
	}

	//
	// Create a compiler-object, with the program as input.
	//
	comp, err := compiler.New(string(src), opts...)
	if err != nil {
		fmt.Printf("ERROR in %s: %s\n", path, err)
		os.Exit(1)
	}

	//
	// Compile.
	//
	result, err := comp.Compile()
	if err != nil {
		fmt.Printf("ERROR in %s: %s\n", path, err)
		os.Exit(1)
	}

	//
	// Non-fatal warnings go to stderr; they never change the exit code.
	//
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", path, w)
	}

	//
	// Work out where the assembly text is going.
	//
	dest := *out
	if dest == "" {
		dest = strings.TrimSuffix(path, filepathExt(path)) + ".s"
	}

	//
	// Write it, guarding every exit path with a deferred close.
	//
	if werr := writeFile(dest, result.Assembly); werr != nil {
		fmt.Printf("ERROR in %s: %s\n", path, werr)
		os.Exit(1)
	}
}

// filepathExt returns the final "." extension of path, or "" if it
// has none, without pulling in path/filepath for just this.
func filepathExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

func writeFile(dest, contents string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(contents)
	return err
}
