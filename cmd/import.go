// Copyright (c) 2019 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Root is the artifactimport command.
func Root() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "artifactimport",
		Short:         "Import and extract forensic artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(Import(), Extract(), Unpack(), Ls())
	return rootCmd
}

// Import is the artifactimport import commandline subcommand.
func Import() *cobra.Command {
	o := &options{}
	importCommand := &cobra.Command{
		Use:   "import <input>...",
		Short: "Import artifacts into tables",
		Long: `Import expands archives and envelopes of the inputs and imports
matching items into the tables of the configuration. Items matching an
extract rule are written to the extract output.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.tableOutput == "" {
				return errors.New("requires --output")
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return run(ctx, afero.NewOsFs(), o, args)
		},
	}
	o.addFlags(importCommand)
	importCommand.Flags().StringVarP(&o.tableOutput, "output", "o", "",
		"table output: SQLite database (.db, .sqlite, sqlite:) or CSV directory")
	return importCommand
}

// Extract is the artifactimport extract commandline subcommand.
func Extract() *cobra.Command {
	o := &options{}
	extractCommand := &cobra.Command{
		Use:   "extract <input>...",
		Short: "Extract artifacts from collected archives",
		Long: `Extract expands archives and envelopes of the inputs and writes
items matching an extract rule to the extract output.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.extractOutput == "" {
				return errors.New("requires --extract-output")
			}
			if o.config == "" && len(o.patterns) == 0 {
				return errors.New("requires --config or --extract")
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return run(ctx, afero.NewOsFs(), o, args)
		},
	}
	o.addFlags(extractCommand)
	return extractCommand
}
