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

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/geom"
	"github.com/spf13/cobra"

	"github.com/spatialmodel/vecfilter"
	"github.com/spatialmodel/vecfilter/backend"
	"github.com/spatialmodel/vecfilter/backend/ogr"
	"github.com/spatialmodel/vecfilter/cmd/vecfilterctl/fixture"
	"github.com/spatialmodel/vecfilter/orchestrator"
)

var (
	demoPredicates []string
	demoBuffer     float64
	demoCombine    string
	demoSrcCentr   bool
	demoTgtCentr   bool
)

func init() {
	demoCmd.Flags().StringSliceVar(&demoPredicates, "predicate", []string{"intersects"},
		"One or more canonical predicates to apply (intersects, contains, within, touches, crosses, overlaps, disjoint, equals, covers, covered_by, dwithin).")
	demoCmd.Flags().Float64Var(&demoBuffer, "buffer", 0, "Buffer distance (metres) applied to the source geometry before matching.")
	demoCmd.Flags().StringVar(&demoCombine, "combine", "replace", "Combine operator: and, or, not_and, or replace.")
	demoCmd.Flags().BoolVar(&demoSrcCentr, "source-centroid", false, "Reduce the source geometry to its interior point before matching.")
	demoCmd.Flags().BoolVar(&demoTgtCentr, "target-centroid", false, "Reduce each target feature to its interior point before matching.")
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a filter request against a small built-in fixture layer pair.",
	Long: `demo builds two in-memory layers — a single polygon "zones" source
layer and a handful of point "assets" features — and runs one filter
request through the full engine (geometry normalization, predicate
matching, result caching, history push), printing the resulting subset.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo()
	},
}

func runDemo() error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitInvalidArguments)
	}

	preds, err := parsePredicates(demoPredicates)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitInvalidArguments)
	}
	combine, err := parseCombine(demoCombine)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitInvalidArguments)
	}

	host := fixture.New(log)
	seedFixtureData(host)

	ogrPort := ogr.New(host, cfg.ExecutionProgressEveryNFeatures)
	factory := backend.NewFactory(nil, ogrPort)
	core := orchestrator.NewCore(host, factory, cfg, log)
	defer core.Shutdown(context.Background())

	req := vecfilter.FilterRequest{
		SourceLayerRef:    "zones",
		TargetLayerRefs:   []vecfilter.LayerRef{"assets"},
		Predicates:        preds,
		BufferValue:       demoBuffer,
		UseSourceCentroid: demoSrcCentr,
		UseTargetCentroid: demoTgtCentr,
		CombineOperator:   combine,
	}

	outcome, err := core.Run(context.Background(), req)
	if err != nil {
		return exitForError(err)
	}

	for _, lo := range outcome.PerLayer {
		fmt.Printf("layer=%s backend=%s matched=%d cache_hit=%v wall_clock=%s\n",
			lo.LayerRef, lo.Backend, lo.RowsMatched, lo.CacheHit, lo.WallClock)
		if s, ok := host.LastSubsetString(lo.LayerRef); ok {
			fmt.Printf("  subset string: %s\n", s)
		}
		if fids, ok := host.LastSelectedFIDs(lo.LayerRef); ok {
			fmt.Printf("  selected fids: %v\n", fids.Slice())
		}
	}
	return nil
}

func exitForError(err error) error {
	kind, ok := vecfilter.KindOf(err)
	if !ok {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitOther)
	}
	fmt.Fprintln(os.Stderr, err)
	switch kind {
	case vecfilter.LayerNotFilterable:
		os.Exit(ExitLayerNotFilterable)
	case vecfilter.BackendUnavailable:
		os.Exit(ExitBackendUnavailable)
	case vecfilter.Cancelled:
		os.Exit(ExitCancelled)
	default:
		os.Exit(ExitOther)
	}
	return nil
}

func parsePredicates(names []string) ([]vecfilter.Predicate, error) {
	out := make([]vecfilter.Predicate, 0, len(names))
	for _, n := range names {
		p := vecfilter.Predicate(strings.ToLower(strings.TrimSpace(n)))
		switch p {
		case vecfilter.Intersects, vecfilter.Contains, vecfilter.Within, vecfilter.Touches,
			vecfilter.Crosses, vecfilter.Overlaps, vecfilter.Disjoint, vecfilter.Equals,
			vecfilter.Covers, vecfilter.CoveredBy, vecfilter.DWithin:
			out = append(out, p)
		default:
			return nil, fmt.Errorf("unrecognized predicate %q", n)
		}
	}
	return out, nil
}

func parseCombine(s string) (vecfilter.CombineOperator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "and":
		return vecfilter.CombineAND, nil
	case "or":
		return vecfilter.CombineOR, nil
	case "not_and", "notand":
		return vecfilter.CombineNOTAND, nil
	case "replace", "":
		return vecfilter.CombineREPLACE, nil
	default:
		return 0, fmt.Errorf("unrecognized combine operator %q (want and, or, not_and, or replace)", s)
	}
}

// seedFixtureData builds a square polygon "zones" source layer and a
// handful of "assets" point features, some inside the square and some
// outside, so every predicate in the demo has a mix of matches and
// non-matches to show.
func seedFixtureData(host *fixture.Host) {
	square := geom.Polygon{{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0},
	}}

	host.AddLayer(vecfilter.LayerDescriptor{
		Ref:            "zones",
		Kind:           vecfilter.BackendOGR,
		ProviderURI:    "memory://zones",
		GeometryColumn: "geom",
		SRID:           3857,
		GeometryType:   "Polygon",
		PrimaryKey:     "fid",
	}, []fixture.Feature{
		{FID: 1, Geom: square, Attrs: map[string]interface{}{"name": "zone-a"}},
	})

	host.AddLayer(vecfilter.LayerDescriptor{
		Ref:            "assets",
		Kind:           vecfilter.BackendOGR,
		ProviderURI:    "memory://assets",
		GeometryColumn: "geom",
		SRID:           3857,
		GeometryType:   "Point",
		PrimaryKey:     "fid",
	}, []fixture.Feature{
		{FID: 101, Geom: geom.Point{X: 5, Y: 5}, Attrs: map[string]interface{}{"category": "inside"}},
		{FID: 102, Geom: geom.Point{X: 50, Y: 50}, Attrs: map[string]interface{}{"category": "far"}},
		{FID: 103, Geom: geom.Point{X: 9, Y: 9}, Attrs: map[string]interface{}{"category": "corner"}},
		{FID: 104, Geom: geom.Point{X: 10.5, Y: 5}, Attrs: map[string]interface{}{"category": "edge-adjacent"}},
	})
}
