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

// Package postgis is a test helper that starts a disposable PostGIS
// container for backend/postgres's integration tests, adapted from the
// teacher's own internal/postgis test fixture: same
// testcontainers-go + pgx/v4 + cenkalti/backoff/v4 stack, but the
// teacher's OSM-import step (osm2pgsql against a Honolulu extract) is
// replaced with a minimal fixture schema that exercises the
// materialised-view/GIST-index path backend/postgres actually drives.
package postgis

import (
	"context"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v4"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Fixture is one row of the generic "layer" table SetupTestDB seeds:
// an integer primary key and a geometry literal in WKT, in SRID 4326.
type Fixture struct {
	FID int64
	WKT string
}

// SetupTestDB starts a postgis/postgis container, waits for it to
// accept connections, creates the postgis extension, and populates
// table with the given fixtures (geom column in SRID 4326). It returns
// a connection URL and the running container, which the caller must
// terminate.
func SetupTestDB(ctx context.Context, t *testing.T, table string, fixtures []Fixture) (string, testcontainers.Container) {
	const (
		dbname = "vecfilter_test"
		dbuser = "postgres"
		dbpass = "postgres"
		dbport = "5432"
	)

	req := testcontainers.ContainerRequest{
		Image:        "postgis/postgis:15-3.3-alpine",
		ExposedPorts: []string{fmt.Sprintf("%s/tcp", dbport)},
		Env: map[string]string{
			"POSTGRES_DB":       dbname,
			"POSTGRES_USER":     dbuser,
			"POSTGRES_PASSWORD": dbpass,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal(err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mapped, err := container.MappedPort(ctx, dbport)
	if err != nil {
		t.Fatal(err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", dbuser, dbpass, host, mapped.Port(), dbname)

	var conn *pgx.Conn
	err = backoff.Retry(func() error {
		c, dialErr := pgx.Connect(ctx, dsn)
		if dialErr != nil {
			return dialErr
		}
		conn = c
		return nil
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		t.Fatal(err)
	}

	createSQL := fmt.Sprintf(
		"CREATE TABLE %s (fid bigint PRIMARY KEY, geom geometry(Geometry, 4326))",
		quoteIdent(table),
	)
	if _, err := conn.Exec(ctx, createSQL); err != nil {
		t.Fatal(err)
	}
	for _, f := range fixtures {
		insertSQL := fmt.Sprintf("INSERT INTO %s (fid, geom) VALUES ($1, ST_GeomFromText($2, 4326))", quoteIdent(table))
		if _, err := conn.Exec(ctx, insertSQL, f.FID, f.WKT); err != nil {
			t.Fatal(err)
		}
	}

	return dsn, container
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}
