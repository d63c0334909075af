// Command nmc is the NovelMind script compiler and inspector: it lexes,
// parses, validates, and compiles .nms files, and can print the resulting
// tokens, AST, or bytecode for debugging (§4 "Script compiler").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/novelmind/novelmind/internal/nmcompiler"
	"github.com/novelmind/novelmind/internal/nmlexer"
	"github.com/novelmind/novelmind/internal/nmparser"
	"github.com/novelmind/novelmind/internal/nmvalidator"
)

var (
	version   = "{v}"
	buildDate = "{d}"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nmc",
		Short: "NovelMind script compiler and inspector",
	}
	root.AddCommand(newTokenizeCmd())
	root.AddCommand(newParseCmd())
	root.AddCommand(newCompileCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "nmc %s %s\n", version, buildDate)
			return nil
		},
	}
}

func newTokenizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokenize <file>",
		Short: "print the token stream for a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			toks, err := nmlexer.Tokenize(args[0], src)
			for _, tok := range toks {
				fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", tok)
			}
			if err != nil {
				return fmt.Errorf("tokenize: %w", err)
			}
			return nil
		},
	}
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "parse and validate a script, printing diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			prog, err := nmparser.ParseProgram(args[0], src)
			if err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			res := nmvalidator.Validate(prog, nmvalidator.DefaultOptions())
			for _, d := range res.Diagnostics {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", d)
			}
			if res.HasErrors() {
				return fmt.Errorf("validate: %d error(s)", len(res.Errors()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d scene(s))\n", args[0], len(prog.Scenes))
			return nil
		},
	}
}

func newCompileCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "compile a script to a standalone .nmbc bytecode file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			prog, err := nmparser.ParseProgram(args[0], src)
			if err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			res := nmvalidator.Validate(prog, nmvalidator.DefaultOptions())
			if res.HasErrors() {
				for _, d := range res.Errors() {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", d)
				}
				return fmt.Errorf("validate: %d error(s)", len(res.Errors()))
			}
			cs, err := nmcompiler.Compile(args[0], prog)
			if err != nil {
				return fmt.Errorf("compile: %w", err)
			}
			data, err := nmcompiler.EncodeBytecode(cs, 0)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = args[0] + "c"
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d instructions)\n", outPath, len(cs.Instructions))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output .nmbc path (default: <file>c)")
	return cmd
}
