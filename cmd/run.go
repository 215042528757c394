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
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forensicanalysis/artifactimport/config"
	"github.com/forensicanalysis/artifactimport/envelope"
	"github.com/forensicanalysis/artifactimport/importer"
	"github.com/forensicanalysis/artifactimport/logging"
	"github.com/forensicanalysis/artifactimport/report"
	"github.com/forensicanalysis/artifactimport/sqlitefs"
	"github.com/forensicanalysis/artifactimport/stream"
	"github.com/forensicanalysis/artifactimport/tableout"
)

type options struct {
	config        string
	patterns      []string
	tableOutput   string
	extractOutput string
	temp          string
	report        string

	fileBytes       int64
	memoryBytes     int64
	memoryThreshold int64
	openInputs      int

	recipientCert string
	recipientKey  string
	verify        bool
	password      string

	computerName string
	systemType   string

	logLevel string
	logJSON  bool
}

func (o *options) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&o.config, "config", "c", "", "JSON configuration with import rules and tables")
	flags.StringSliceVar(&o.patterns, "extract", nil, "extract items matching the pattern (repeatable)")
	flags.StringVar(&o.extractOutput, "extract-output", "", "directory or .sqlar file for extracted items")
	flags.StringVar(&o.temp, "temp", os.TempDir(), "directory for temporary files")
	flags.StringVar(&o.report, "report", "", "CSV file for the import report")
	flags.Int64Var(&o.fileBytes, "file-bytes", 0, "bytes temporary files may use on disk")
	flags.Int64Var(&o.memoryBytes, "memory-bytes", 0, "bytes temporary streams may use in memory")
	flags.Int64Var(&o.memoryThreshold, "memory-threshold", 0, "largest stream kept in memory")
	flags.IntVar(&o.openInputs, "open-inputs", defaultOpenInputs, "input files kept open at the same time")
	flags.StringVar(&o.recipientCert, "recipient-cert", "", "PEM certificate to decrypt envelopes")
	flags.StringVar(&o.recipientKey, "recipient-key", "", "PEM private key to decrypt envelopes")
	flags.BoolVar(&o.verify, "verify", false, "verify envelope signatures")
	flags.StringVar(&o.password, "password", "", "default archive password")
	flags.StringVar(&o.computerName, "computer", "", "computer name recorded for every item")
	flags.StringVar(&o.systemType, "system-type", "", "system type recorded for every item")
	flags.StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&o.logJSON, "log-json", false, "log in JSON")
}

func (o *options) load(fs afero.Fs) (*config.Config, error) {
	if o.config == "" {
		cfg, err := config.Parse([]byte("{}"))
		return cfg, err
	}
	return config.Load(fs, o.config)
}

func (o *options) resources(cfg *config.Config) (fileBytes, memoryBytes, memoryThreshold int64) {
	fileBytes, memoryBytes, memoryThreshold = cfg.Resources.FileBytes, cfg.Resources.MemoryBytes, cfg.Resources.MemoryThreshold
	if o.fileBytes > 0 {
		fileBytes = o.fileBytes
	}
	if o.memoryBytes > 0 {
		memoryBytes = o.memoryBytes
	}
	if o.memoryThreshold > 0 {
		memoryThreshold = o.memoryThreshold
	}
	return fileBytes, memoryBytes, memoryThreshold
}

func (o *options) opener(fs afero.Fs) (*envelope.Opener, error) {
	opts := []envelope.Option{envelope.WithVerify(o.verify)}
	if o.recipientCert != "" || o.recipientKey != "" {
		r, err := envelope.LoadRecipient(fs, o.recipientCert, o.recipientKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, envelope.WithRecipient(r))
	}
	return envelope.New(opts...), nil
}

// extractFs opens the extraction output, a directory or a SQLite archive.
func extractFs(fs afero.Fs, output string) (afero.Fs, io.Closer, error) {
	if output == "" {
		return nil, nil, nil
	}
	if strings.EqualFold(filepath.Ext(output), ".sqlar") {
		if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil {
			return nil, nil, err
		}
		sfs, err := sqlitefs.New(output)
		if err != nil {
			return nil, nil, err
		}
		return sfs, sfs, nil
	}
	if err := fs.MkdirAll(output, 0750); err != nil {
		return nil, nil, errors.Wrap(err, "could not create extract output")
	}
	return afero.NewBasePathFs(fs, output), nil, nil
}

// run imports the inputs with the tables of the configuration into
// tableOutput. Without tableOutput nothing is imported.
func run(ctx context.Context, fs afero.Fs, o *options, inputs []string) (err error) {
	logger, err := logging.New(o.logLevel, o.logJSON)
	if err != nil {
		return err
	}
	defer logger.Sync() // nolint:errcheck

	cfg, err := o.load(fs)
	if err != nil {
		return err
	}
	def, err := cfg.Definition()
	if err != nil {
		return err
	}
	for _, p := range o.patterns {
		def.Rules = append(def.Rules, importer.Rule{Action: importer.ActionExtract, NameMatch: p})
	}
	if err := def.Validate(); err != nil {
		return err
	}
	pollInterval, err := cfg.PollInterval()
	if err != nil {
		return err
	}
	opener, err := o.opener(fs)
	if err != nil {
		return err
	}

	var notifier importer.Notifier = importer.NotifierFunc(func(importer.Notification) {})
	if o.report != "" {
		f, cerr := fs.Create(o.report)
		if cerr != nil {
			return errors.Wrap(cerr, "could not create report")
		}
		defer f.Close()
		r, rerr := report.New(f)
		if rerr != nil {
			return rerr
		}
		defer func() {
			if ferr := r.Flush(); err == nil {
				err = ferr
			}
		}()
		notifier = r
	}

	limiter := newInputLimiter(o.openInputs, notifier)

	password := o.password
	if password == "" {
		password = cfg.Resources.Password
	}
	fileBytes, memoryBytes, memoryThreshold := o.resources(cfg)
	agent := importer.New(
		importer.WithLogger(logger),
		importer.WithDefinition(def),
		importer.WithNotifier(limiter),
		importer.WithBudget(fileBytes, memoryBytes, memoryThreshold),
		importer.WithPollInterval(pollInterval),
		importer.WithIdleCompletion(false),
		importer.WithOpener(opener),
		importer.WithPassword(password),
	)

	outs := importer.Outputs{TempFS: fs, TempDir: o.temp}
	extract, closer, err := extractFs(fs, o.extractOutput)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	outs.Extract = extract

	descs, err := cfg.TableDescriptions()
	if err != nil {
		return err
	}
	if o.tableOutput != "" {
		outs.Import, err = tableout.Parse(o.tableOutput, fs, tableout.Options{})
		if err != nil {
			return err
		}
	} else if len(descs) > 0 {
		logger.Warn("no table output, tables are not imported")
		descs = nil
	}

	if err := agent.InitializeOutputs(outs); err != nil {
		return err
	}
	if err := agent.InitializeTables(descs); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- agent.Run(ctx)
	}()

	start := time.Now()
	sendErr := send(ctx, fs, agent, limiter, o, inputs)
	if sendErr != nil {
		logger.Error("input enumeration failed", zap.Error(sendErr))
	}
	if err := agent.SendRequest(ctx, importer.Complete()); err != nil {
		logger.Error("could not complete", zap.Error(err))
	}

	err = <-done
	logger.Info("done",
		zap.Int64("items", agent.Admitted()),
		zap.Duration("duration", time.Since(start)),
	)
	if err == nil {
		err = sendErr
	}
	return err
}

// send admits every file of the inputs. Files of a directory input are
// named by their path relative to the directory.
func send(ctx context.Context, fs afero.Fs, agent *importer.Agent, limiter *inputLimiter, o *options, inputs []string) error {
	for _, input := range inputs {
		info, err := fs.Stat(input)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			if err := sendFile(ctx, fs, agent, limiter, o, input, path.Base(filepath.ToSlash(input))); err != nil {
				return err
			}
			continue
		}

		err = afero.Walk(fs, input, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(input, p)
			if err != nil {
				return err
			}
			return sendFile(ctx, fs, agent, limiter, o, p, filepath.ToSlash(rel))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// sendFile opens one input once a slot of limiter is free and admits it.
func sendFile(ctx context.Context, fs afero.Fs, agent *importer.Agent, limiter *inputLimiter, o *options, name, fullName string) error {
	if err := limiter.acquire(ctx); err != nil {
		return err
	}
	f, err := stream.Open(fs, name)
	if err != nil {
		limiter.abandon()
		return err
	}
	item := agent.NewItem(fullName, f)
	item.InputFile = name
	item.ComputerName = o.computerName
	item.SystemType = o.systemType
	limiter.track(item.ID)
	if err := agent.SendRequest(ctx, importer.NewRequest(importer.Triage(item), item)); err != nil {
		f.Close() // nolint:errcheck
		limiter.release(item.ID)
		return err
	}
	return nil
}
