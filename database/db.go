package database

import (
	"database/sql"
	"errors"

	"github.com/DavidHuie/gomigrate"
	_ "github.com/lib/pq" // postgres driver
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/logging"
)

type Database struct {
	conn      *sql.DB
	Artifacts *artifactsTableStatements
}

// Open connects to postgres, runs the migrations and prepares the table
// accessors.
func Open(c config.DatabaseConfig, migrationsPath string) (*Database, error) {
	d := &Database{}
	var err error

	if d.conn, err = sql.Open("postgres", c.Postgres); err != nil {
		return nil, errors.New("error connecting to db: " + err.Error())
	}
	if c.Pool != nil {
		d.conn.SetMaxOpenConns(c.Pool.MaxConnections)
		d.conn.SetMaxIdleConns(c.Pool.MaxIdle)
	}

	// Run migrations
	var migrator *gomigrate.Migrator
	if migrator, err = gomigrate.NewMigratorWithLogger(d.conn, gomigrate.Postgres{}, migrationsPath, &logging.SendToDebugLogger{}); err != nil {
		_ = d.conn.Close()
		return nil, errors.New("error setting up migrator: " + err.Error())
	}
	if err = migrator.Migrate(); err != nil {
		_ = d.conn.Close()
		return nil, errors.New("error running migrations: " + err.Error())
	}

	// Prepare the table accessors
	if d.Artifacts, err = prepareArtifactsTables(d.conn); err != nil {
		_ = d.conn.Close()
		return nil, errors.New("failed to create artifacts table accessor: " + err.Error())
	}

	return d, nil
}

func (d *Database) Close() error {
	return d.conn.Close()
}
