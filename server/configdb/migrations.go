package configdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE policy(
			id INTEGER PRIMARY KEY,
			required_gear TEXT NOT NULL,
			min_confidence REAL NOT NULL,
			nms_iou REAL NOT NULL,
			min_overlap REAL NOT NULL,
			trigger_frames INT NOT NULL,
			clear_frames INT NOT NULL
		);

		CREATE TABLE variable(
			key TEXT PRIMARY KEY,
			value TEXT
		);

		CREATE TABLE alarm_event(
			id INTEGER PRIMARY KEY,
			time INT NOT NULL,
			kind TEXT NOT NULL,
			frame INT NOT NULL,
			missing TEXT
		);
		CREATE INDEX idx_alarm_event_time ON alarm_event (time);

	`))

	return migs
}
