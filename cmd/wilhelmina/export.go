// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/blinklabs-io/wilhelmina/export"
	"github.com/blinklabs-io/wilhelmina/internal/config"
	"github.com/spf13/cobra"
)

var exportFlags = struct {
	community string
	format    string
	dest      string
	audit     bool
}{}

func exportRun(cmd *cobra.Command, cfg *config.Config) error {
	logger := commonRun(cfg)
	format, err := export.ParseFormat(exportFlags.format)
	if err != nil {
		return err
	}
	db, closeDb, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDb(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	dest, err := export.OpenDestination(
		ctx,
		exportFlags.dest,
		export.DestinationOptions{
			GcsCredentialsFile: cfg.GcsCredentialsFile,
			S3Region:           cfg.S3Region,
		},
	)
	if err != nil {
		return err
	}
	files, err := export.Write(
		ctx,
		db,
		exportFlags.community,
		format,
		exportFlags.audit,
		dest,
	)
	if err != nil {
		return errors.Join(err, dest.Close())
	}
	if err := dest.Close(); err != nil {
		return err
	}
	for _, f := range files {
		logger.Info(
			"exported "+f.Name,
			"component", programName,
			"community", exportFlags.community,
			"dest", exportFlags.dest,
		)
	}
	return nil
}

func exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a community's member records, optionally with its audit journal",
		Run: func(cmd *cobra.Command, args []string) {
			if err := exportRun(cmd, mustConfig(cmd)); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&exportFlags.community, "community", "", "community ID to export")
	cmd.Flags().StringVar(&exportFlags.format, "format", "csv", "output format (csv or json)")
	cmd.Flags().
		StringVar(&exportFlags.dest, "dest", ".", "destination directory, gs://bucket/prefix or s3://bucket/prefix")
	cmd.Flags().BoolVar(&exportFlags.audit, "audit", false, "include the audit journal")
	_ = cmd.MarkFlagRequired("community")
	return cmd
}
