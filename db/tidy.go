package db

import (
	"database/sql"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes episodes published before the retention window. Their
// image rows cascade.
func Tidy(database string, retentionDays int) error {
	db, err := connection(database)
	if err != nil {
		return err
	}

	return tidy(db, retentionDays)
}

func tidy(db *sql.DB, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	deleteComics := sb.NewDeleteBuilder()
	query, args := deleteComics.DeleteFrom("comics").
		Where(deleteComics.LessThan("published_at", cutoff)).
		BuildWithFlavor(sb.SQLite)

	res, err := db.Exec(query, args...)
	if err != nil {
		return err
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"cutoff":   time.Unix(cutoff, 0).UTC().Format(time.DateOnly),
		"episodes": removed,
	}).Info("Tidied database")

	return nil
}
