// Command inspect-slice parses a YAML or JSON literal into a data slice and
// prints its shape, schema and content. An optional expression is evaluated
// over the slice, which is bound as the input "x".
//
// Usage:
//
//	inspect-slice [flags] [file]
//	echo '[[1, 2], [3]]' | inspect-slice -e 'agg_min(x)'
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	goyaml "github.com/itchyny/go-yaml"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/slicelab/jagged/eval"
	"github.com/slicelab/jagged/schema"
	"github.com/slicelab/jagged/slice"
)

var (
	exprFlag   = flag.String("e", "", "expression to evaluate over the input, bound as x")
	tableFlag  = flag.Bool("table", false, "print the flat index/value table")
	schemaFlag = flag.Bool("schema", false, "print the slice schema as JSON Schema")
	logFlag    = flag.String("log", "warn", "log level: error, warn, info, debug")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "inspect-slice: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var data []byte
	var err error
	switch flag.NArg() {
	case 0:
		data, err = io.ReadAll(os.Stdin)
	case 1:
		data, err = os.ReadFile(flag.Arg(0))
	default:
		return fmt.Errorf("usage: inspect-slice [flags] [file]")
	}
	if err != nil {
		return err
	}

	ds, err := loadSlice(data)
	if err != nil {
		return err
	}

	if *exprFlag != "" {
		e, err := eval.Parse(*exprFlag)
		if err != nil {
			return fmt.Errorf("parse expression: %w", err)
		}
		opts := eval.DefaultOptions()
		opts.LogLevel = *logFlag
		ds, err = eval.Eval(e, map[string]*slice.DataSlice{"x": ds}, opts)
		if err != nil {
			return err
		}
	}

	fmt.Printf("%s %s\n", header("shape:"), ds.Shape())
	fmt.Printf("%s %s\n", header("schema:"), ds.Schema())

	if *schemaFlag {
		out, err := yaml.Marshal(schema.ExportJSONSchema(ds.Schema()))
		if err != nil {
			return fmt.Errorf("export schema: %w", err)
		}
		fmt.Printf("%s\n%s", header("json-schema:"), out)
		return nil
	}
	if *tableFlag {
		fmt.Println(header("elements:"))
		fmt.Print(ds.Table())
		return nil
	}

	out, err := yaml.Marshal(yamlable(ds.ToNested()))
	if err != nil {
		return fmt.Errorf("render value: %w", err)
	}
	fmt.Printf("%s\n%s", header("value:"), out)
	return nil
}

// loadSlice parses the YAML/JSON document into a slice literal.
func loadSlice(data []byte) (*slice.DataSlice, error) {
	var raw any
	if err := goyaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	ds, err := slice.FromVals(normalize(raw))
	if err != nil {
		return nil, fmt.Errorf("build slice: %w", err)
	}
	return ds, nil
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

// yamlable rewrites nested-expansion output into marshal-friendly values.
func yamlable(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = yamlable(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = yamlable(e)
		}
		return out
	case []slice.KV:
		// Dict content: preserve insertion order with an ordered mapping node.
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, kv := range t {
			var key, val yaml.Node
			if err := key.Encode(yamlable(kv.Key)); err != nil {
				continue
			}
			if err := val.Encode(yamlable(kv.Value)); err != nil {
				continue
			}
			node.Content = append(node.Content, &key, &val)
		}
		return node
	case slice.ItemID:
		return t.String()
	case *schema.Schema:
		return t.String()
	case []byte:
		return string(t)
	default:
		return v
	}
}

func header(s string) string {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return "\x1b[1m" + s + "\x1b[0m"
	}
	return s
}
