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

// Command vecfilterctl is a command-line harness for the vecfilter
// engine.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/vecfilter/cmd/vecfilterctl/cmd"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitInvalidArguments)
	}
}
