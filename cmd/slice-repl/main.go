// Command slice-repl is an interactive shell for evaluating slice
// expressions. Inputs are bound from YAML files given as name=path
// arguments, and results of assignments become new inputs:
//
//	slice-repl docs=docs.yaml
//	slice> m = agg_min(docs, ndim=1)
//	slice> m + 1
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	goyaml "github.com/itchyny/go-yaml"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"

	"github.com/slicelab/jagged/eval"
	"github.com/slicelab/jagged/slice"
)

var logFlag = flag.String("log", "warn", "log level: error, warn, info, debug")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "slice-repl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	inputs := make(map[string]*slice.DataSlice)
	for _, arg := range flag.Args() {
		name, path, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected name=path, got %q", arg)
		}
		ds, err := loadInput(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		inputs[name] = ds
		fmt.Printf("%s = %s\n", name, ds.Repr())
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("stdin is not a terminal")
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completer(inputs))

	histPath := filepath.Join(os.TempDir(), ".slice_repl_history")
	if f, err := os.Open(histPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	opts := eval.DefaultOptions()
	opts.LogLevel = *logFlag
	sess := eval.NewSession()

	for {
		src, err := line.Prompt("slice> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		line.AppendHistory(src)

		switch src {
		case ":quit", ":q":
			return nil
		case ":ops":
			for _, name := range eval.Operators() {
				fmt.Println(" ", name)
			}
			continue
		case ":inputs":
			names := make([]string, 0, len(inputs))
			for name := range inputs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %s = %s\n", name, inputs[name].Repr())
			}
			continue
		case ":clear":
			sess.ClearCache()
			fmt.Println("cache cleared")
			continue
		}

		// Assignment binds the result as a new input.
		target := ""
		if name, rest, ok := splitAssignment(src); ok {
			target, src = name, rest
		}

		e, err := eval.Parse(src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
			continue
		}
		out, err := sess.Eval(e, inputs, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if target != "" {
			inputs[target] = out
			line.SetCompleter(completer(inputs))
			fmt.Printf("%s = %s\n", target, out.Repr())
			continue
		}
		fmt.Println(out.Repr())
	}
}

// splitAssignment recognizes "name = expr" lines.
func splitAssignment(src string) (name, rest string, ok bool) {
	i := strings.IndexByte(src, '=')
	if i <= 0 {
		return "", "", false
	}
	name = strings.TrimSpace(src[:i])
	for _, r := range name {
		if r != '_' && !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return "", "", false
		}
	}
	rest = strings.TrimSpace(src[i+1:])
	if name == "" || rest == "" {
		return "", "", false
	}
	return name, rest, true
}

func loadInput(path string) (*slice.DataSlice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := goyaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return slice.FromVals(normalize(raw))
}

// normalize maps decoder output onto the literal forms FromVals accepts.
func normalize(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(t))
		for k, e := range t {
			out[normalize(k)] = normalize(e)
		}
		return out
	case uint64:
		return int64(t)
	default:
		return v
	}
}

// completer offers operator names and bound input names.
func completer(inputs map[string]*slice.DataSlice) liner.Completer {
	candidates := eval.Operators()
	for name := range inputs {
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)
	return func(line string) []string {
		i := strings.LastIndexFunc(line, func(r rune) bool {
			return !(r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
		})
		prefix, word := line[:i+1], line[i+1:]
		if word == "" {
			return nil
		}
		var out []string
		for _, c := range candidates {
			if strings.HasPrefix(c, word) {
				out = append(out, prefix+c)
			}
		}
		return out
	}
}
