// Command up parses and processes UP (Unified Properties) documents.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/uplang/up"
	"github.com/urfave/cli/v2"
)

var version = "0.2.0"

func main() {
	app := &cli.App{
		Name:    "up",
		Usage:   "parse and process UP (Unified Properties) documents",
		Version: version,
		Commands: []*cli.Command{
			parseCommand(),
			validateCommand(),
			templateCommand(),
			namespacesCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "parse a UP document and print it as JSON",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "compact", Aliases: []string{"c"}, Usage: "print compact JSON"},
		},
		Action: func(ctx *cli.Context) error {
			data, err := readInput(ctx.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			doc, err := up.Parse(data)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return printJSON(doc, ctx.Bool("compact"))
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "check that UP documents parse",
		ArgsUsage: "[file...]",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() == 0 {
				data, err := readInput("")
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				if _, err := up.Parse(data); err != nil {
					return cli.Exit(fmt.Sprintf("stdin: %v", err), 1)
				}
				return nil
			}
			for _, name := range ctx.Args().Slice() {
				data, err := os.ReadFile(name)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				if _, err := up.Parse(data); err != nil {
					return cli.Exit(fmt.Sprintf("%s: %v", name, err), 1)
				}
			}
			return nil
		},
	}
}

func templateCommand() *cli.Command {
	return &cli.Command{
		Name:      "template",
		Usage:     "process a UP template and print the result as JSON",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "compact", Aliases: []string{"c"}, Usage: "print compact JSON"},
			&cli.StringFlag{Name: "merge", Value: "deep", Usage: "merge strategy: deep, shallow, replace"},
			&cli.StringFlag{Name: "lists", Value: "append", Usage: "list strategy: append, unique, replace"},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return cli.Exit("template requires exactly one file argument", 1)
			}
			engine := up.NewTemplateEngine().WithOptions(up.TemplateOptions{
				MergeStrategy: ctx.String("merge"),
				ListStrategy:  ctx.String("lists"),
				BaseDir:       ".",
			})
			doc, err := engine.ProcessTemplate(ctx.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return printJSON(doc, ctx.Bool("compact"))
		},
	}
}

func namespacesCommand() *cli.Command {
	return &cli.Command{
		Name:      "namespaces",
		Usage:     "print the namespaces requested by !use directives",
		ArgsUsage: "[file]",
		Action: func(ctx *cli.Context) error {
			data, err := readInput(ctx.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			doc, err := up.Parse(data)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			for _, node := range doc.Nodes {
				if use, ok := node.Value.(*up.UseDirective); ok {
					for _, ns := range use.Namespaces {
						fmt.Println(ns)
					}
				}
			}
			return nil
		},
	}
}

// readInput reads the named file, or stdin when name is empty or "-".
func readInput(name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func printJSON(doc *up.Document, compact bool) error {
	var out []byte
	var err error
	if compact {
		out, err = json.Marshal(doc)
	} else {
		out, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Println(string(out))
	return nil
}
