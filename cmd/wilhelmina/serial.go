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
	"fmt"
	"log/slog"
	"os"

	"github.com/blinklabs-io/wilhelmina/internal/config"
	"github.com/blinklabs-io/wilhelmina/serial"
	"github.com/spf13/cobra"
)

var serialFlags = struct {
	community string
	next      uint64
}{}

func serialRun(cmd *cobra.Command, cfg *config.Config, seed bool) error {
	logger := commonRun(cfg)
	db, closeDb, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDb(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()
	allocator := serial.NewAllocator(
		db.Blob(),
		serial.WithCeiling(cfg.SerialCeiling),
		serial.WithLogger(logger),
	)
	if seed {
		if err := allocator.Seed(cmd.Context(), serialFlags.community, serialFlags.next); err != nil {
			return err
		}
	}
	next, err := allocator.Peek(cmd.Context(), serialFlags.community)
	if err != nil {
		return err
	}
	formatted, err := serial.Format(next, allocator.Ceiling())
	if err != nil {
		return err
	}
	fmt.Printf("%s next serial: %s\n", serialFlags.community, formatted)
	return nil
}

func serialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serial",
		Short: "Inspect or seed a community's soul ID serial counter",
	}
	cmd.PersistentFlags().StringVar(&serialFlags.community, "community", "", "community ID")
	_ = cmd.MarkPersistentFlagRequired("community")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the next serial to be issued",
		Run: func(cmd *cobra.Command, args []string) {
			if err := serialRun(cmd, mustConfig(cmd), false); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Set the next serial, for migrating an existing register",
		Run: func(cmd *cobra.Command, args []string) {
			if err := serialRun(cmd, mustConfig(cmd), true); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	seedCmd.Flags().Uint64Var(&serialFlags.next, "next", 1, "next serial to issue")
	cmd.AddCommand(showCmd, seedCmd)
	return cmd
}
