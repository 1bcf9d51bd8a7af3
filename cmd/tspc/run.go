package main

import (
	"fmt"
	"os"

	"github.com/ZontarLives/tsp-compiler/core/grammar"
	"github.com/ZontarLives/tsp-compiler/runtime/compiler"
	"github.com/ZontarLives/tsp-compiler/runtime/emit"
)

// compileOnce runs one full compilation over files and writes the document.
// Units with only non-fatal diagnostics still contribute to the output; a
// fatal error drops that unit and fails the run after all units are tried.
func compileOnce(files []string, output string, useColor bool) error {
	doc, ok := compileAll(files, useColor)
	if doc == nil {
		return fmt.Errorf("no output produced")
	}

	if err := writeDocument(doc, output); err != nil {
		return err
	}

	digest, err := emit.Digest(doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d entities -> %s (sha256 %s)\n",
		len(doc.Entities), outputName(output), digest[:12])

	if !ok {
		return fmt.Errorf("compilation finished with errors")
	}
	return nil
}

// checkOnly compiles and validates the document against the output contract
// without writing anything.
func checkOnly(files []string, useColor bool) error {
	doc, ok := compileAll(files, useColor)
	if doc == nil {
		return fmt.Errorf("check failed")
	}
	if err := emit.ValidateDocument(doc); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d entities, document ok\n", len(doc.Entities))
	if !ok {
		return fmt.Errorf("check finished with errors")
	}
	return nil
}

// compileAll feeds every file through one session and reports diagnostics.
// The returned flag is false when any unit was fatal or any diagnostic is
// error severity. A nil document means not a single unit could be read.
func compileAll(files []string, useColor bool) (*emit.Document, bool) {
	session := compiler.NewSession(grammar.Default())

	fatal := false
	read := 0
	for _, file := range files {
		source, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintln(os.Stderr, renderFatal(file, err, useColor))
			fatal = true
			continue
		}
		read++
		res := session.CompileUnit(file, string(source))
		if res.Err != nil {
			fmt.Fprintln(os.Stderr, renderFatal(res.Unit, res.Err, useColor))
			fatal = true
		}
	}
	if read == 0 {
		return nil, false
	}

	doc, _ := session.Finalize()
	reportDiagnostics(os.Stderr, session.Diagnostics(), useColor)

	return doc, !fatal && !session.HasErrors()
}

func writeDocument(doc *emit.Document, output string) error {
	if output == "-" {
		return emit.WriteJSON(os.Stdout, doc)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	defer f.Close()
	if err := emit.WriteJSON(f, doc); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	return nil
}

func outputName(output string) string {
	if output == "-" {
		return "stdout"
	}
	return output
}
