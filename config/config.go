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

// Package config loads the engine's configuration, per §6's option
// table, via github.com/spf13/viper the same way the teacher's
// inmaputil.Cfg wraps *viper.Viper: defaults registered up front, an
// optional config file layered on top, and environment variables in
// the "VECFILTER_" namespace (teacher: "INMAP_var") overriding both.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/spatialmodel/vecfilter"
)

// Config mirrors every option in §6's table by name.
type Config struct {
	BackendPostgreSQLEnabled               bool
	BackendPostgreSQLMaterializedViewSchema string
	CacheCapacity                          uint
	HistoryCapacity                        uint
	GeometryBufferEndcap                   vecfilter.BufferEndcap
	GeometryCentroidMode                   vecfilter.CentroidMode
	GeometrySimplifyBeforeBuffer           bool
	CRSPolicy                              vecfilter.CRSPolicy
	ExecutionConcurrency                   uint
	ExecutionProgressEveryNFeatures        uint
}

// Default returns the option defaults from §6, used when no file or
// environment override is present.
func Default() Config {
	return Config{
		BackendPostgreSQLEnabled:                true,
		BackendPostgreSQLMaterializedViewSchema: "public",
		CacheCapacity:                           128,
		HistoryCapacity:                         100,
		GeometryBufferEndcap:                    vecfilter.EndcapRound,
		GeometryCentroidMode:                    vecfilter.CentroidPointOnSurface,
		GeometrySimplifyBeforeBuffer:            false,
		CRSPolicy:                               vecfilter.CRSAuto,
		ExecutionConcurrency:                    1,
		ExecutionProgressEveryNFeatures:          1000,
	}
}

// newViper registers the §6 keys and their defaults on a fresh *viper.Viper,
// the same "SetDefault per option" style InitializeConfig uses for
// InMAP's own option table.
func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("backend.postgresql.enabled", d.BackendPostgreSQLEnabled)
	v.SetDefault("backend.postgresql.materialised_view_schema", d.BackendPostgreSQLMaterializedViewSchema)
	v.SetDefault("cache.capacity", d.CacheCapacity)
	v.SetDefault("history.capacity", d.HistoryCapacity)
	v.SetDefault("geometry.buffer_endcap", "round")
	v.SetDefault("geometry.centroid_mode", "point_on_surface")
	v.SetDefault("geometry.simplify_before_buffer", d.GeometrySimplifyBeforeBuffer)
	v.SetDefault("crs.policy", "auto")
	v.SetDefault("execution.concurrency", d.ExecutionConcurrency)
	v.SetDefault("execution.progress_every_n_features", d.ExecutionProgressEveryNFeatures)

	v.SetEnvPrefix("VECFILTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads Config from an optional file at path (skipped if path is
// empty) layered over the §6 defaults and VECFILTER_* environment
// overrides, mirroring setConfig's "ReadInConfig only if a path was
// given" behavior.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	endcap, err := parseEndcap(v.GetString("geometry.buffer_endcap"))
	if err != nil {
		return Config{}, err
	}
	centroid, err := parseCentroidMode(v.GetString("geometry.centroid_mode"))
	if err != nil {
		return Config{}, err
	}
	policy, err := parseCRSPolicy(v.GetString("crs.policy"))
	if err != nil {
		return Config{}, err
	}
	return Config{
		BackendPostgreSQLEnabled:                 v.GetBool("backend.postgresql.enabled"),
		BackendPostgreSQLMaterializedViewSchema:  v.GetString("backend.postgresql.materialised_view_schema"),
		CacheCapacity:                            v.GetUint("cache.capacity"),
		HistoryCapacity:                          v.GetUint("history.capacity"),
		GeometryBufferEndcap:                     endcap,
		GeometryCentroidMode:                     centroid,
		GeometrySimplifyBeforeBuffer:              v.GetBool("geometry.simplify_before_buffer"),
		CRSPolicy:                                policy,
		ExecutionConcurrency:                     orOne(v.GetUint("execution.concurrency")),
		ExecutionProgressEveryNFeatures:           v.GetUint("execution.progress_every_n_features"),
	}, nil
}

func orOne(n uint) uint {
	if n == 0 {
		return 1
	}
	return n
}

func parseEndcap(s string) (vecfilter.BufferEndcap, error) {
	switch s {
	case "round", "":
		return vecfilter.EndcapRound, nil
	case "flat":
		return vecfilter.EndcapFlat, nil
	case "square":
		return vecfilter.EndcapSquare, nil
	default:
		return 0, fmt.Errorf("config: geometry.buffer_endcap: unrecognized value %q (want round, flat, or square)", s)
	}
}

func parseCentroidMode(s string) (vecfilter.CentroidMode, error) {
	switch s {
	case "point_on_surface", "":
		return vecfilter.CentroidPointOnSurface, nil
	case "centroid":
		return vecfilter.CentroidGeometric, nil
	case "auto":
		return vecfilter.CentroidAuto, nil
	default:
		return 0, fmt.Errorf("config: geometry.centroid_mode: unrecognized value %q (want point_on_surface, centroid, or auto)", s)
	}
}

func parseCRSPolicy(s string) (vecfilter.CRSPolicy, error) {
	switch s {
	case "auto", "":
		return vecfilter.CRSAuto, nil
	case "force_metric":
		return vecfilter.CRSForceMetric, nil
	case "as_is":
		return vecfilter.CRSAsIs, nil
	default:
		return 0, fmt.Errorf("config: crs.policy: unrecognized value %q (want auto, force_metric, or as_is)", s)
	}
}
