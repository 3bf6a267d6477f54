package db

import (
	"time"

	"database/sql"
	"fmt"

	"github.com/comicfeed/comicfeed/models"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

type Writer struct {
	db            *sql.DB
	eventChan     chan interface{}
	retentionDays int
	tidyChan      *time.Ticker
}

func NewWriter(database string, retentionDays int, eventChan chan interface{}) *Writer {
	db, err := connection(database)
	if err != nil {
		panic("failed to connect database")
	}
	return &Writer{
		db:            db,
		eventChan:     eventChan,
		retentionDays: retentionDays,
		// Create new tidy channel that is pinged twice a day
		tidyChan: time.NewTicker(12 * time.Hour),
	}
}

// Subscribe applies crawl events to the store until the event channel
// is closed and drained.
func (writer *Writer) Subscribe() {
	for {
		select {
		case <-writer.tidyChan.C:
			log.Info("Tidying database")
			if err := tidy(writer.db, writer.retentionDays); err != nil {
				log.Error("Error tidying database", err)
			}

		case event, ok := <-writer.eventChan:
			if !ok {
				writer.tidyChan.Stop()
				return
			}
			switch event := event.(type) {
			case models.UpsertTitleEvent:
				if err := upsertTitle(writer.db, event.Title); err != nil {
					log.Error("Error upserting title", err)
				}
			case models.UpsertComicEvent:
				if err := upsertComic(writer.db, event.Key, event.Comic); err != nil {
					log.Error("Error upserting episode", err)
				}
			case models.CrawlDoneEvent:
				if err := markCrawled(writer.db, event.Key); err != nil {
					log.Error("Error marking crawl finished", err)
				}
			default:
				log.Info("Unknown crawl event type")
			}
		}

	}
}

func upsertTitle(db *sql.DB, title models.Title) error {
	log.WithFields(log.Fields{
		"title": title.Key().String(),
		"name":  title.Name,
	}).Info("Upserting title")

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO titles (kind, title_id, name, description, url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, title_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			url = excluded.url`,
		string(title.Kind), title.ID, title.Name, title.Description, title.URL,
	); err != nil {
		return fmt.Errorf("upsert title: %w", err)
	}

	ref, err := titleRef(tx, title.Key())
	if err != nil {
		return err
	}

	// Replace the artist rows wholesale, keeping their order. The urls
	// table cascades.
	if _, err := tx.Exec("DELETE FROM artists WHERE title_ref = ?", ref); err != nil {
		return fmt.Errorf("clear artists: %w", err)
	}
	for position, artist := range title.Artists {
		res, err := tx.Exec(
			"INSERT INTO artists (title_ref, position, name) VALUES (?, ?, ?)",
			ref, position, artist.Name,
		)
		if err != nil {
			return fmt.Errorf("insert artist: %w", err)
		}
		artistRef, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for urlPosition, artistURL := range artist.URLs {
			if _, err := tx.Exec(
				"INSERT INTO artist_urls (artist_ref, position, url) VALUES (?, ?, ?)",
				artistRef, urlPosition, artistURL,
			); err != nil {
				return fmt.Errorf("insert artist url: %w", err)
			}
		}
	}

	return tx.Commit()
}

func upsertComic(db *sql.DB, key models.TitleKey, comic models.Comic) error {
	log.WithFields(log.Fields{
		"title": key.String(),
		"no":    comic.No,
	}).Info("Upserting episode")

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ref, err := titleRef(tx, key)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO comics (title_ref, no, url, name, book, description, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (title_ref, no) DO UPDATE SET
			url = excluded.url,
			name = excluded.name,
			book = excluded.book,
			description = excluded.description,
			published_at = excluded.published_at`,
		ref, comic.No, comic.URL, comic.Title, comic.Book, comic.Description, comic.PublishedAt.Unix(),
	); err != nil {
		return fmt.Errorf("upsert episode: %w", err)
	}

	var comicRef int64
	if err := tx.QueryRow(
		"SELECT id FROM comics WHERE title_ref = ? AND no = ?", ref, comic.No,
	).Scan(&comicRef); err != nil {
		return fmt.Errorf("resolve episode: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM comic_images WHERE comic_ref = ?", comicRef); err != nil {
		return fmt.Errorf("clear images: %w", err)
	}
	for position, imageURL := range comic.ImageURLs {
		if _, err := tx.Exec(
			"INSERT INTO comic_images (comic_ref, position, url) VALUES (?, ?, ?)",
			comicRef, position, imageURL,
		); err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
	}

	return tx.Commit()
}

func markCrawled(db *sql.DB, key models.TitleKey) error {
	updateTitle := sqlbuilder.NewUpdateBuilder()
	query, args := updateTitle.Update("titles").
		Set(updateTitle.Assign("crawled_at", time.Now().Unix())).
		Where(
			updateTitle.Equal("kind", string(key.Kind)),
			updateTitle.Equal("title_id", key.ID),
		).
		BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := db.Exec(query, args...); err != nil {
		return fmt.Errorf("mark crawled: %w", err)
	}

	return nil
}

func titleRef(tx *sql.Tx, key models.TitleKey) (int64, error) {
	var ref int64
	err := tx.QueryRow(
		"SELECT id FROM titles WHERE kind = ? AND title_id = ?",
		string(key.Kind), key.ID,
	).Scan(&ref)
	if err != nil {
		return 0, fmt.Errorf("resolve title %s: %w", key, err)
	}
	return ref, nil
}
