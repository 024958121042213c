package rules

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresDocumentStore implements DocumentStore backed by PostgreSQL.
// Documents are stored as JSONB and re-validated on read, so a row
// edited behind the engine's back can never reach evaluation unchecked.
type PostgresDocumentStore struct {
	db *sql.DB
}

// NewPostgresDocumentStore creates a store over an open database handle.
func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

func (s *PostgresDocumentStore) Get(name, version string) (*RuleDocument, error) {
	var raw []byte
	err := s.db.QueryRow(`
		SELECT definition
		FROM rule_documents
		WHERE name = $1 AND version = $2
	`, name, version).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q version %q: %w", name, version, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc, err := LoadDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("stored document %q version %q: %w", name, version, err)
	}
	return doc, nil
}

func (s *PostgresDocumentStore) FindByRule(ruleName, version string) (*RuleDocument, error) {
	// The JSONB ? operator tests key existence in the rules object.
	var raw []byte
	err := s.db.QueryRow(`
		SELECT definition
		FROM rule_documents
		WHERE version = $2 AND definition->'rules' ? $1
		ORDER BY name ASC
		LIMIT 1
	`, ruleName, version).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %q version %q: %w", ruleName, version, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document by rule: %w", err)
	}

	doc, err := LoadDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("stored document for rule %q version %q: %w", ruleName, version, err)
	}
	return doc, nil
}

func (s *PostgresDocumentStore) Put(doc *RuleDocument) error {
	_, err := s.db.Exec(`
		INSERT INTO rule_documents (name, version, description, definition)
		VALUES ($1, $2, $3, $4)
	`, doc.Name, doc.Version, doc.Description, doc.Raw())

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return fmt.Errorf("document %q version %q: %w", doc.Name, doc.Version, ErrDocumentExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *PostgresDocumentStore) ListVersions(ruleName string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT version
		FROM rule_documents
		WHERE definition->'rules' ? $1
		ORDER BY created_at ASC, version ASC
	`, ruleName)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}
	return versions, nil
}
