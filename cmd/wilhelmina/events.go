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
	"time"

	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/internal/config"
	"github.com/spf13/cobra"
)

var eventsFlags = struct {
	community string
	subject   string
	kinds     []string
}{}

func eventsRun(cmd *cobra.Command, cfg *config.Config) error {
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
	journal, err := eventlog.New(eventlog.LogConfig{DB: db, Logger: logger})
	if err != nil {
		return err
	}
	var entries []eventlog.Entry
	switch {
	case eventsFlags.subject != "":
		entries, err = journal.ListSubject(cmd.Context(), eventsFlags.community, eventsFlags.subject)
	case len(eventsFlags.kinds) > 0:
		kinds := make([]eventlog.Kind, 0, len(eventsFlags.kinds))
		for _, k := range eventsFlags.kinds {
			kinds = append(kinds, eventlog.Kind(k))
		}
		entries, err = journal.ListKinds(cmd.Context(), eventsFlags.community, kinds...)
	default:
		entries, err = journal.List(cmd.Context(), eventsFlags.community)
	}
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Printf(
			"%d\t%s\t%s\t%s\t%s\n",
			entry.Seq,
			entry.CreatedAt.In(loc).Format(time.RFC3339),
			orDash(entry.ActorID),
			orDash(entry.SubjectID),
			eventlog.Render(entry),
		)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func eventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print a community's audit journal",
		Run: func(cmd *cobra.Command, args []string) {
			if err := eventsRun(cmd, mustConfig(cmd)); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&eventsFlags.community, "community", "", "community ID")
	cmd.Flags().StringVar(&eventsFlags.subject, "subject", "", "only entries concerning this member")
	cmd.Flags().StringSliceVar(&eventsFlags.kinds, "kind", nil, "only entries of these kinds")
	_ = cmd.MarkFlagRequired("community")
	return cmd
}
