package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/comicfeed/comicfeed/models"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// ErrTitleNotFound is returned when a title was never crawled into the store.
var ErrTitleNotFound = errors.New("db: title not found")

type Reader struct {
	db *sql.DB
}

func NewReader(database string) *Reader {
	// Open in read-only mode with optimized settings
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?mode=ro&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", database))
	if err != nil {
		panic("failed to connect database")
	}

	// Set connection pool settings for reader
	db.SetMaxOpenConns(4)            // Allow multiple concurrent readers
	db.SetMaxIdleConns(2)            // Keep some connections ready
	db.SetConnMaxLifetime(time.Hour) // Recreate connections after an hour
	db.SetConnMaxIdleTime(time.Hour) // Close idle connections after an hour

	// Configure additional pragmas for better read performance
	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
		PRAGMA cache_size = -32000; -- 32MB cache
		PRAGMA temp_store = MEMORY;
		PRAGMA mmap_size = 268435456; -- 256MB memory mapped I/O
		PRAGMA page_size = 4096;      -- Optimal page size for most systems
		PRAGMA read_uncommitted = 1;   -- Allow dirty reads for better concurrency
	`); err != nil {
		panic(fmt.Sprintf("failed to set pragmas: %v", err))
	}

	return &Reader{
		db: db,
	}
}

// GetTitle loads a fully populated title. Comics come newest first, by
// publish time then episode number. A limit of 0 loads every stored
// episode.
func (reader *Reader) GetTitle(ctx context.Context, key models.TitleKey, limit int) (models.Title, error) {
	title := models.Title{Kind: key.Kind, ID: key.ID}

	selectTitle := sqlbuilder.NewSelectBuilder()
	selectTitle.Select("id", "name", "description", "url").From("titles")
	selectTitle.Where(
		selectTitle.Equal("kind", string(key.Kind)),
		selectTitle.Equal("title_id", key.ID),
	)
	query, args := selectTitle.BuildWithFlavor(sqlbuilder.SQLite)

	var ref int64
	err := reader.db.QueryRowContext(ctx, query, args...).Scan(&ref, &title.Name, &title.Description, &title.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Title{}, ErrTitleNotFound
	}
	if err != nil {
		return models.Title{}, fmt.Errorf("query error: %w", err)
	}

	if title.Artists, err = reader.artists(ctx, ref); err != nil {
		return models.Title{}, err
	}
	if title.Comics, err = reader.comics(ctx, ref, limit); err != nil {
		return models.Title{}, err
	}

	return title, nil
}

// ListTitles returns every stored title without its episodes, for the
// index page.
func (reader *Reader) ListTitles(ctx context.Context) ([]models.Title, error) {
	selectTitles := sqlbuilder.NewSelectBuilder()
	selectTitles.Select("kind", "title_id", "name", "description", "url").From("titles")
	selectTitles.OrderBy("kind", "name").Asc()
	query, args := selectTitles.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := reader.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var titles []models.Title
	for rows.Next() {
		var title models.Title
		var kind string
		if err := rows.Scan(&kind, &title.ID, &title.Name, &title.Description, &title.URL); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		title.Kind = models.Kind(kind)
		titles = append(titles, title)
	}

	return titles, rows.Err()
}

// LatestEpisodeNo returns the highest stored episode number for a title,
// or 0 when none are stored. Crawls use it to stop at already known
// episodes.
func (reader *Reader) LatestEpisodeNo(ctx context.Context, key models.TitleKey) (int64, error) {
	selectNo := sqlbuilder.NewSelectBuilder()
	selectNo.Select("COALESCE(MAX(comics.no), 0)").From("comics")
	selectNo.Join("titles", "titles.id = comics.title_ref")
	selectNo.Where(
		selectNo.Equal("titles.kind", string(key.Kind)),
		selectNo.Equal("titles.title_id", key.ID),
	)
	query, args := selectNo.BuildWithFlavor(sqlbuilder.SQLite)

	var no int64
	if err := reader.db.QueryRowContext(ctx, query, args...).Scan(&no); err != nil {
		return 0, fmt.Errorf("query error: %w", err)
	}

	return no, nil
}

func (reader *Reader) artists(ctx context.Context, titleRef int64) ([]models.Artist, error) {
	selectArtists := sqlbuilder.NewSelectBuilder()
	selectArtists.Select("id", "name").From("artists")
	selectArtists.Where(selectArtists.Equal("title_ref", titleRef))
	selectArtists.OrderBy("position").Asc()
	query, args := selectArtists.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := reader.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var artists []models.Artist
	index := make(map[int64]int)
	var refs []interface{}
	for rows.Next() {
		var artist models.Artist
		if err := rows.Scan(&artist.ID, &artist.Name); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		index[artist.ID] = len(artists)
		refs = append(refs, artist.ID)
		artists = append(artists, artist)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(artists) == 0 {
		return nil, nil
	}

	selectURLs := sqlbuilder.NewSelectBuilder()
	selectURLs.Select("artist_ref", "url").From("artist_urls")
	selectURLs.Where(selectURLs.In("artist_ref", refs...))
	selectURLs.OrderBy("artist_ref", "position").Asc()
	query, args = selectURLs.BuildWithFlavor(sqlbuilder.SQLite)

	urlRows, err := reader.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer urlRows.Close()

	for urlRows.Next() {
		var artistRef int64
		var artistURL string
		if err := urlRows.Scan(&artistRef, &artistURL); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		i := index[artistRef]
		artists[i].URLs = append(artists[i].URLs, artistURL)
	}

	return artists, urlRows.Err()
}

func (reader *Reader) comics(ctx context.Context, titleRef int64, limit int) ([]models.Comic, error) {
	selectComics := sqlbuilder.NewSelectBuilder()
	selectComics.Select("id", "no", "url", "name", "book", "description", "published_at").From("comics")
	selectComics.Where(selectComics.Equal("title_ref", titleRef))
	selectComics.OrderBy("published_at DESC", "no DESC")
	if limit > 0 {
		selectComics.Limit(limit)
	}
	query, args := selectComics.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := reader.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var comics []models.Comic
	index := make(map[int64]int)
	var refs []interface{}
	for rows.Next() {
		var comic models.Comic
		var ref, publishedAt int64
		if err := rows.Scan(&ref, &comic.No, &comic.URL, &comic.Title, &comic.Book, &comic.Description, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		comic.PublishedAt = time.Unix(publishedAt, 0).UTC()
		index[ref] = len(comics)
		refs = append(refs, ref)
		comics = append(comics, comic)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(comics) == 0 {
		return nil, nil
	}

	selectImages := sqlbuilder.NewSelectBuilder()
	selectImages.Select("comic_ref", "url").From("comic_images")
	selectImages.Where(selectImages.In("comic_ref", refs...))
	selectImages.OrderBy("comic_ref", "position").Asc()
	query, args = selectImages.BuildWithFlavor(sqlbuilder.SQLite)

	imageRows, err := reader.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer imageRows.Close()

	for imageRows.Next() {
		var comicRef int64
		var imageURL string
		if err := imageRows.Scan(&comicRef, &imageURL); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		i := index[comicRef]
		comics[i].ImageURLs = append(comics[i].ImageURLs, imageURL)
	}

	return comics, imageRows.Err()
}
