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

package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/spatialmodel/vecfilter"
)

// ProviderKind classifies a layer's data provider, independent of the
// backend that ends up servicing it — a GeoPackage layer is provider
// kind ProviderGeoPackage but selects the Spatialite backend per §4.8
// rule 2.
type ProviderKind int

const (
	ProviderUnknown ProviderKind = iota
	ProviderPostgreSQL
	ProviderSpatialite
	ProviderGeoPackage
	ProviderOGRSource // shapefile, GeoJSON, or any other OGR-readable file
)

// Factory resolves a LayerDescriptor to the Port that should service it,
// and constructs Ports on demand. The orchestrator holds one Factory for
// the lifetime of a session.
type Factory struct {
	ports           map[vecfilter.BackendKind]Port
	postgresHealthy func() bool // nil means "assume healthy if registered"
	postgresEnabled bool
}

// NewFactory builds a Factory over the given Ports, keyed by their own
// Kind(). postgresHealthy lets the caller report a working-client-library
// check (§4.8 rule 1's "runtime has a working PostgreSQL client library");
// if nil, registering a PostgreSQL Port is treated as sufficient.
// PostgreSQL starts enabled; see SetPostgresEnabled for the
// backend.postgresql.enabled §6 option.
func NewFactory(postgresHealthy func() bool, ports ...Port) *Factory {
	m := make(map[vecfilter.BackendKind]Port, len(ports))
	for _, p := range ports {
		m[p.Kind()] = p
	}
	return &Factory{ports: m, postgresHealthy: postgresHealthy, postgresEnabled: true}
}

// SetPostgresEnabled implements the §6 "backend.postgresql.enabled"
// option: when false, Select skips the PostgreSQL backend for every
// layer regardless of provider or health, falling through to the next
// candidate in candidateOrder, exactly as if no PostgreSQL Port had
// been registered at all.
func (f *Factory) SetPostgresEnabled(enabled bool) {
	f.postgresEnabled = enabled
}

// Select implements the §4.8 selection rules for one layer, returning
// the chosen Port. excluded lists backend kinds already tried and
// rejected for this request (used by the orchestrator's
// CapabilityMismatch retry loop so it never reconsiders a backend it
// already ruled out).
func (f *Factory) Select(layer vecfilter.LayerDescriptor, provider ProviderKind, excluded map[vecfilter.BackendKind]bool) (Port, error) {
	order := f.candidateOrder(provider)
	for _, kind := range order {
		if excluded[kind] {
			continue
		}
		p, ok := f.ports[kind]
		if !ok {
			continue
		}
		return p, nil
	}
	return nil, &vecfilter.FilterError{
		Kind:     vecfilter.BackendUnavailable,
		LayerRef: layer.Ref,
		Message:  fmt.Sprintf("no backend available for provider %v (tried in order %v)", provider, order),
	}
}

// candidateOrder implements rules 1-3: PostgreSQL first when the
// provider is actually PostgreSQL and the client library is healthy,
// Spatialite for both native-spatialite and GeoPackage providers, OGR
// as the universal last resort.
func (f *Factory) candidateOrder(provider ProviderKind) []vecfilter.BackendKind {
	switch provider {
	case ProviderPostgreSQL:
		if f.postgresOK() {
			return []vecfilter.BackendKind{vecfilter.BackendPostgreSQL, vecfilter.BackendOGR}
		}
		return []vecfilter.BackendKind{vecfilter.BackendOGR}
	case ProviderSpatialite, ProviderGeoPackage:
		return []vecfilter.BackendKind{vecfilter.BackendSpatialite, vecfilter.BackendOGR}
	default:
		return []vecfilter.BackendKind{vecfilter.BackendOGR}
	}
}

func (f *Factory) postgresOK() bool {
	if !f.postgresEnabled {
		return false
	}
	if _, ok := f.ports[vecfilter.BackendPostgreSQL]; !ok {
		return false
	}
	if f.postgresHealthy == nil {
		return true
	}
	return f.postgresHealthy()
}

// RequireCapability checks that port's capability set supports every
// predicate in preds, returning CapabilityMismatch (not
// PredicateNotSupported — this is a backend-selection-level failure,
// not a translation-level one) the first time it doesn't, so the
// orchestrator can retry Select with this backend excluded.
func RequireCapability(port Port, preds []vecfilter.Predicate) error {
	caps := port.Capabilities()
	for _, p := range preds {
		if !caps.Supports(p) {
			return &vecfilter.FilterError{
				Kind:    vecfilter.CapabilityMismatch,
				Backend: port.Kind(),
				Message: fmt.Sprintf("backend %s has no native support for predicate %q", port.Kind(), p),
			}
		}
	}
	return nil
}

// OpenSession is a convenience wrapper so callers needn't import context
// just to forward it.
func OpenSession(ctx context.Context, port Port, layer vecfilter.LayerDescriptor) (Session, error) {
	return port.OpenSession(ctx, layer)
}

// ClassifyProviderURI implements the layer-kind detection §4.8 rule 1-3
// assume has already happened: a cheap, scheme/extension-based
// classification of a layer's provider_uri, the same kind of sniffing
// the teacher's own CLI does on input file paths in inmaputil/preproc.go
// before picking a shapefile vs. NetCDF reader. Hosts with richer
// provider metadata than a URI (the common case for a real GIS
// application) should classify directly and skip this helper; it exists
// for callers — tests, the cmd/vecfilterctl fixture host — that only
// have a URI string to go on.
func ClassifyProviderURI(uri string) ProviderKind {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasPrefix(lower, "postgresql://") || strings.HasPrefix(lower, "postgres://") || strings.Contains(lower, "dbname="):
		return ProviderPostgreSQL
	case strings.HasSuffix(lower, ".gpkg"):
		return ProviderGeoPackage
	case strings.HasSuffix(lower, ".sqlite") || strings.HasSuffix(lower, ".db"):
		return ProviderSpatialite
	case lower == "":
		return ProviderUnknown
	default:
		return ProviderOGRSource
	}
}
