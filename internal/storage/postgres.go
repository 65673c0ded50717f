package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var observationColumns = []string{
	"id", "keyword_id", "engine", "position", "presence", "answer_snippet",
	"citations_count", "observed_urls", "sentiment", "timestamp", "metadata",
}

// PostgresStore persists projects, keywords and observations in PostgreSQL
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and verifies the connection
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewPostgresStoreFromDB(db), nil
}

func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded goose migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, s.db.DB, fsys)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, result := range results {
		logrus.Infof("Applied migration %s in %v", result.Source.Path, result.Duration)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type observationRow struct {
	ID             string         `db:"id"`
	KeywordID      string         `db:"keyword_id"`
	Engine         string         `db:"engine"`
	Position       sql.NullInt64  `db:"position"`
	Presence       bool           `db:"presence"`
	AnswerSnippet  sql.NullString `db:"answer_snippet"`
	CitationsCount int            `db:"citations_count"`
	ObservedURLs   pq.StringArray `db:"observed_urls"`
	Sentiment      sql.NullString `db:"sentiment"`
	Timestamp      time.Time      `db:"timestamp"`
	Metadata       []byte         `db:"metadata"`
}

func (r observationRow) toModel() (models.Observation, error) {
	engine, err := models.ParseEngine(r.Engine)
	if err != nil {
		return models.Observation{}, err
	}

	obs := models.Observation{
		ID:             r.ID,
		KeywordID:      r.KeywordID,
		Engine:         engine,
		Presence:       r.Presence,
		CitationsCount: r.CitationsCount,
		ObservedURLs:   []string(r.ObservedURLs),
		Timestamp:      r.Timestamp,
	}
	if obs.ObservedURLs == nil {
		obs.ObservedURLs = []string{}
	}
	if r.Position.Valid {
		obs.Position = models.IntPtr(int(r.Position.Int64))
	}
	if r.AnswerSnippet.Valid {
		obs.AnswerSnippet = models.StringPtr(r.AnswerSnippet.String)
	}
	if r.Sentiment.Valid {
		sentiment, err := models.ParseSentiment(r.Sentiment.String)
		if err != nil {
			return models.Observation{}, err
		}
		obs.Sentiment = &sentiment
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &obs.Metadata); err != nil {
			return models.Observation{}, fmt.Errorf("failed to decode metadata of %s: %w", r.ID, err)
		}
	}
	return obs, nil
}

// Append inserts the observations with a single multi-row statement
func (s *PostgresStore) Append(ctx context.Context, observations []models.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	if err := validateAll(observations); err != nil {
		return err
	}

	insert := psql.Insert("visibility_checks").Columns(observationColumns...)
	for _, obs := range observations {
		var metadata []byte
		if obs.Metadata != nil {
			encoded, err := json.Marshal(obs.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata of %s: %w", obs.ID, err)
			}
			metadata = encoded
		}

		var sentiment *string
		if obs.Sentiment != nil {
			sentiment = models.StringPtr(obs.Sentiment.String())
		}

		insert = insert.Values(
			obs.ID,
			obs.KeywordID,
			obs.Engine.String(),
			obs.Position,
			obs.Presence,
			obs.AnswerSnippet,
			obs.CitationsCount,
			pq.StringArray(obs.ObservedURLs),
			sentiment,
			obs.Timestamp,
			metadata,
		)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %d observations: %w", len(observations), err)
	}
	return nil
}

// Query selects observations matching filter ordered by timestamp
func (s *PostgresStore) Query(ctx context.Context, filter models.ObservationFilter) ([]models.Observation, error) {
	selectQuery := psql.Select(observationColumns...).From("visibility_checks")

	if len(filter.KeywordIDs) > 0 {
		selectQuery = selectQuery.Where(squirrel.Eq{"keyword_id": filter.KeywordIDs})
	}
	if len(filter.Engines) > 0 {
		names := make([]string, 0, len(filter.Engines))
		for _, engine := range filter.Engines {
			names = append(names, engine.String())
		}
		selectQuery = selectQuery.Where(squirrel.Eq{"engine": names})
	}
	if !filter.Since.IsZero() {
		selectQuery = selectQuery.Where(squirrel.GtOrEq{"timestamp": filter.Since})
	}
	if !filter.Until.IsZero() {
		selectQuery = selectQuery.Where(squirrel.Lt{"timestamp": filter.Until})
	}
	selectQuery = selectQuery.OrderBy("timestamp ASC")

	query, args, err := selectQuery.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var rows []observationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}

	observations := make([]models.Observation, 0, len(rows))
	for _, row := range rows {
		obs, err := row.toModel()
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

type projectRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Domain      string         `db:"domain"`
	BrandName   string         `db:"brand_name"`
	Competitors pq.StringArray `db:"competitors"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r projectRow) toModel() models.Project {
	return models.Project{
		ID:          r.ID,
		Name:        r.Name,
		Domain:      r.Domain,
		BrandName:   r.BrandName,
		Competitors: []string(r.Competitors),
		CreatedAt:   r.CreatedAt,
	}
}

type keywordRow struct {
	ID        string         `db:"id"`
	ProjectID string         `db:"project_id"`
	Keyword   string         `db:"keyword"`
	Category  sql.NullString `db:"category"`
	Priority  int            `db:"priority"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r keywordRow) toModel() models.Keyword {
	keyword := models.Keyword{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Keyword:   r.Keyword,
		Priority:  r.Priority,
		CreatedAt: r.CreatedAt,
	}
	if r.Category.Valid {
		keyword.Category = models.StringPtr(r.Category.String)
	}
	return keyword
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query, args, err := psql.Select("id", "name", "domain", "brand_name", "competitors", "created_at").
		From("projects").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var row projectRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Kind: "project", ID: id}
		}
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}

	project := row.toModel()
	return &project, nil
}

// ListProjects returns every project ordered by creation time
func (s *PostgresStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	query, args, err := psql.Select("id", "name", "domain", "brand_name", "competitors", "created_at").
		From("projects").
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}

	projects := make([]models.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, row.toModel())
	}
	return projects, nil
}

func (s *PostgresStore) ListKeywords(ctx context.Context, projectID string) ([]models.Keyword, error) {
	return s.selectKeywords(ctx, squirrel.Eq{"project_id": projectID})
}

// GetKeywords returns the keywords that exist among ids; unknown ids are skipped
func (s *PostgresStore) GetKeywords(ctx context.Context, ids []string) ([]models.Keyword, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.selectKeywords(ctx, squirrel.Eq{"id": ids})
}

func (s *PostgresStore) selectKeywords(ctx context.Context, where squirrel.Sqlizer) ([]models.Keyword, error) {
	query, args, err := psql.Select("id", "project_id", "keyword", "category", "priority", "created_at").
		From("keywords").
		Where(where).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var rows []keywordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query keywords: %w", err)
	}

	keywords := make([]models.Keyword, 0, len(rows))
	for _, row := range rows {
		keywords = append(keywords, row.toModel())
	}
	return keywords, nil
}

func (s *PostgresStore) SaveProject(ctx context.Context, project *models.Project) error {
	query, args, err := psql.Insert("projects").
		Columns("id", "name", "domain", "brand_name", "competitors", "created_at").
		Values(project.ID, project.Name, project.Domain, project.BrandName, pq.StringArray(project.Competitors), project.CreatedAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, domain = EXCLUDED.domain, " +
			"brand_name = EXCLUDED.brand_name, competitors = EXCLUDED.competitors").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save project %s: %w", project.ID, err)
	}
	return nil
}

// SaveKeywords upserts keywords; only category and priority change on conflict
func (s *PostgresStore) SaveKeywords(ctx context.Context, keywords []models.Keyword) error {
	if len(keywords) == 0 {
		return nil
	}

	insert := psql.Insert("keywords").
		Columns("id", "project_id", "keyword", "category", "priority", "created_at")
	for _, keyword := range keywords {
		insert = insert.Values(keyword.ID, keyword.ProjectID, keyword.Keyword, keyword.Category, keyword.Priority, keyword.CreatedAt)
	}

	query, args, err := insert.
		Suffix("ON CONFLICT (id) DO UPDATE SET category = EXCLUDED.category, priority = EXCLUDED.priority").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save %d keywords: %w", len(keywords), err)
	}
	return nil
}

// DeleteKeyword relies on ON DELETE CASCADE to drop the keyword's checks
func (s *PostgresStore) DeleteKeyword(ctx context.Context, id string) error {
	query, args, err := psql.Delete("keywords").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete keyword %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete keyword %s: %w", id, err)
	}
	if affected == 0 {
		return &models.NotFoundError{Kind: "keyword", ID: id}
	}
	return nil
}
