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
	"testing"

	"github.com/spatialmodel/vecfilter"
)

type fakePort struct {
	kind vecfilter.BackendKind
	caps CapabilitySet
}

func (f fakePort) Kind() vecfilter.BackendKind      { return f.kind }
func (f fakePort) Capabilities() CapabilitySet      { return f.caps }
func (f fakePort) OpenSession(ctx context.Context, layer vecfilter.LayerDescriptor) (Session, error) {
	return nil, nil
}

func TestClassifyProviderURI(t *testing.T) {
	cases := map[string]ProviderKind{
		"postgresql://user@host/db":       ProviderPostgreSQL,
		"postgres://user@host/db":         ProviderPostgreSQL,
		"dbname=gis host=localhost":       ProviderPostgreSQL,
		"/data/parks.gpkg":                ProviderGeoPackage,
		"/data/parks.sqlite":              ProviderSpatialite,
		"/data/parks.db":                  ProviderSpatialite,
		"/data/parks.shp":                 ProviderOGRSource,
		"/data/parks.geojson":             ProviderOGRSource,
		"":                                ProviderUnknown,
	}
	for uri, want := range cases {
		if got := ClassifyProviderURI(uri); got != want {
			t.Errorf("ClassifyProviderURI(%q) = %v, want %v", uri, got, want)
		}
	}
}

func TestFactorySelectsPostgresForPostgresProvider(t *testing.T) {
	f := NewFactory(nil,
		fakePort{kind: vecfilter.BackendPostgreSQL, caps: PostgresCapabilities()},
		fakePort{kind: vecfilter.BackendOGR, caps: OGRCapabilities()},
	)
	p, err := f.Select(vecfilter.LayerDescriptor{Ref: "L"}, ProviderPostgreSQL, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Kind() != vecfilter.BackendPostgreSQL {
		t.Errorf("Select() = %v, want PostgreSQL", p.Kind())
	}
}

func TestFactoryFallsBackWhenPostgresUnhealthy(t *testing.T) {
	f := NewFactory(func() bool { return false },
		fakePort{kind: vecfilter.BackendPostgreSQL, caps: PostgresCapabilities()},
		fakePort{kind: vecfilter.BackendOGR, caps: OGRCapabilities()},
	)
	p, err := f.Select(vecfilter.LayerDescriptor{Ref: "L"}, ProviderPostgreSQL, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Kind() != vecfilter.BackendOGR {
		t.Errorf("Select() = %v, want OGR fallback when postgres is unhealthy", p.Kind())
	}
}

func TestFactorySkipsPostgresWhenDisabledByConfig(t *testing.T) {
	f := NewFactory(nil,
		fakePort{kind: vecfilter.BackendPostgreSQL, caps: PostgresCapabilities()},
		fakePort{kind: vecfilter.BackendOGR, caps: OGRCapabilities()},
	)
	f.SetPostgresEnabled(false)
	p, err := f.Select(vecfilter.LayerDescriptor{Ref: "L"}, ProviderPostgreSQL, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Kind() != vecfilter.BackendOGR {
		t.Errorf("Select() = %v, want OGR fallback when backend.postgresql.enabled is false", p.Kind())
	}
}

func TestFactoryGeoPackagePrefersSpatialite(t *testing.T) {
	f := NewFactory(nil,
		fakePort{kind: vecfilter.BackendSpatialite, caps: SpatialiteCapabilities()},
		fakePort{kind: vecfilter.BackendOGR, caps: OGRCapabilities()},
	)
	p, err := f.Select(vecfilter.LayerDescriptor{Ref: "L"}, ProviderGeoPackage, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Kind() != vecfilter.BackendSpatialite {
		t.Errorf("Select() = %v, want Spatialite for a GeoPackage provider", p.Kind())
	}
}

func TestFactoryExcludedBackendsAreSkipped(t *testing.T) {
	// §4.8 rule 4: CapabilityMismatch retries the *next* candidate, never
	// an arbitrary backend outside the precomputed order.
	f := NewFactory(nil,
		fakePort{kind: vecfilter.BackendSpatialite, caps: SpatialiteCapabilities()},
		fakePort{kind: vecfilter.BackendOGR, caps: OGRCapabilities()},
	)
	p, err := f.Select(vecfilter.LayerDescriptor{Ref: "L"}, ProviderGeoPackage, map[vecfilter.BackendKind]bool{vecfilter.BackendSpatialite: true})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Kind() != vecfilter.BackendOGR {
		t.Errorf("Select() = %v, want OGR once Spatialite is excluded", p.Kind())
	}
}

func TestFactoryNoCandidateReturnsBackendUnavailable(t *testing.T) {
	f := NewFactory(nil) // no ports registered at all
	_, err := f.Select(vecfilter.LayerDescriptor{Ref: "L"}, ProviderOGRSource, nil)
	if err == nil {
		t.Fatal("expected BackendUnavailable")
	}
	if kind, ok := vecfilter.KindOf(err); !ok || kind != vecfilter.BackendUnavailable {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
}

func TestRequireCapabilityMismatch(t *testing.T) {
	p := fakePort{kind: vecfilter.BackendOGR, caps: OGRCapabilities()}
	err := RequireCapability(p, []vecfilter.Predicate{vecfilter.Touches})
	if err == nil {
		t.Fatal("expected CapabilityMismatch: OGR has no native 'touches' support")
	}
	if kind, ok := vecfilter.KindOf(err); !ok || kind != vecfilter.CapabilityMismatch {
		t.Fatalf("expected CapabilityMismatch, got %v", err)
	}
}

func TestRequireCapabilitySatisfied(t *testing.T) {
	p := fakePort{kind: vecfilter.BackendPostgreSQL, caps: PostgresCapabilities()}
	if err := RequireCapability(p, []vecfilter.Predicate{vecfilter.Touches, vecfilter.Intersects}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
