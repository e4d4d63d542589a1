package diagnostic

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/supai/backend/internal/classify"
	"github.com/supai/backend/internal/index"
	"github.com/supai/backend/pkg/logger"
)

// Store is the durable append-only diagnostic log. Each Log call is a
// single INSERT, so concurrent sessions cannot lose each other's entries
// the way a load-modify-rewrite file would.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("Diagnostic store initialized", zap.String("path", dbPath))

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS diagnostics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		question TEXT NOT NULL,
		rewritten_query TEXT NOT NULL,
		retrieval_status TEXT NOT NULL,
		retrieval_reason TEXT NOT NULL,
		top_score REAL NOT NULL,
		sources_retrieved TEXT NOT NULL,
		scores_per_source TEXT NOT NULL,
		generation_status TEXT NOT NULL,
		generation_reason TEXT NOT NULL,
		overall_failure_type TEXT NOT NULL,
		answer_preview TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_session ON diagnostics(session_id);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_timestamp ON diagnostics(timestamp);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_failure ON diagnostics(overall_failure_type);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Log derives the overall failure category, builds the immutable entry and
// appends it. The returned entry carries the assigned row id.
func (s *Store) Log(
	sessionID, question, rewrittenQuery string,
	retrieval classify.RetrievalClassification,
	generation classify.GenerationClassification,
	results []index.Result,
	answer string,
) (*Entry, error) {
	entry := newEntry(sessionID, question, rewrittenQuery, retrieval, generation, results, answer)

	sourcesJSON, err := json.Marshal(entry.Retrieval.SourcesRetrieved)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sources: %w", err)
	}
	scoresJSON, err := json.Marshal(entry.Retrieval.ScoresPerSource)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scores: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO diagnostics (
			session_id, timestamp, question, rewritten_query,
			retrieval_status, retrieval_reason, top_score,
			sources_retrieved, scores_per_source,
			generation_status, generation_reason,
			overall_failure_type, answer_preview
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.Timestamp.UnixMilli(),
		entry.Question,
		entry.RewrittenQuery,
		string(entry.Retrieval.Status),
		entry.Retrieval.Reason,
		entry.Retrieval.TopScore,
		string(sourcesJSON),
		string(scoresJSON),
		string(entry.Generation.Status),
		entry.Generation.Reason,
		string(entry.OverallFailure),
		entry.AnswerPreview,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append diagnostic entry: %w", err)
	}

	entry.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read entry id: %w", err)
	}

	logger.Debug("Diagnostic entry logged",
		zap.String("session_id", sessionID),
		zap.String("failure_type", string(entry.OverallFailure)),
	)

	return &entry, nil
}

// Recent returns the newest entries for a session in submission order
// (oldest of the window first).
func (s *Store) Recent(sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, session_id, timestamp, question, rewritten_query,
			retrieval_status, retrieval_reason, top_score,
			sources_retrieved, scores_per_source,
			generation_status, generation_reason,
			overall_failure_type, answer_preview
		FROM (
			SELECT * FROM diagnostics WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostics: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var retrievalStatus, generationStatus, failureType string
		var sourcesJSON, scoresJSON string

		err := rows.Scan(
			&e.ID, &e.SessionID, &ts, &e.Question, &e.RewrittenQuery,
			&retrievalStatus, &e.Retrieval.Reason, &e.Retrieval.TopScore,
			&sourcesJSON, &scoresJSON,
			&generationStatus, &e.Generation.Reason,
			&failureType, &e.AnswerPreview,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic entry: %w", err)
		}

		e.Timestamp = time.UnixMilli(ts)
		e.Retrieval.Status = classify.RetrievalStatus(retrievalStatus)
		e.Generation.Status = classify.GenerationStatus(generationStatus)
		e.OverallFailure = classify.FailureType(failureType)

		if err := json.Unmarshal([]byte(sourcesJSON), &e.Retrieval.SourcesRetrieved); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
		if err := json.Unmarshal([]byte(scoresJSON), &e.Retrieval.ScoresPerSource); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scores: %w", err)
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (s *Store) Count(sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM diagnostics WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count diagnostics: %w", err)
	}
	return count, nil
}

// ExportJSON renders a session's entries as a JSON array in the
// object-per-entry diagnostic log shape.
func (s *Store) ExportJSON(sessionID string) ([]byte, error) {
	entries, err := s.Recent(sessionID, 1<<30)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}
