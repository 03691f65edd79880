/*
Copyright (C) 2026 the vecfilter authors.
This file is part of vecfilter.

vecfilter is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

vecfilter is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with vecfilter.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cmd contains the commands and subcommands for vecfilterctl,
// grounded on the teacher's inmap/cmd/root.go command tree shape: one
// RootCmd, subcommands registered from init(), plain persistent cobra
// flags, with the --config file loaded through package config.
package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spatialmodel/vecfilter/config"
)

var (
	configFile string
	verbose    bool

	log *logrus.Entry
)

// RootCmd is the main command.
var RootCmd = &cobra.Command{
	Use:   "vecfilterctl",
	Short: "Exercise the vecfilter spatial filtering engine from the command line.",
	Long: `vecfilterctl drives the vecfilter engine against an in-memory
fixture host, for local testing and demonstration of the filter,
undo/redo, and backend-selection behavior without a real GIS
application attached.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l := logrus.New()
		if verbose {
			l.SetLevel(logrus.DebugLevel)
		}
		log = logrus.NewEntry(l)
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file location (optional)")
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	RootCmd.AddCommand(demoCmd)
	RootCmd.AddCommand(versionCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// Version is the engine version string, set at build time via
// -ldflags the same way the teacher's inmap.Version is.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vecfilterctl v%s\n", Version)
	},
}

// Exit codes per §6 of the spec: 0 ok, 2 invalid arguments, 3 layer not
// filterable, 4 backend unavailable, 5 cancelled.
const (
	ExitOK                 = 0
	ExitInvalidArguments   = 2
	ExitLayerNotFilterable = 3
	ExitBackendUnavailable = 4
	ExitCancelled          = 5
	ExitOther              = 1
)
