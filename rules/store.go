package rules

import (
	"fmt"
	"sort"
	"sync"
)

// DocumentStore manages rule document persistence and retrieval. The
// engine never loads documents itself; a store is injected by the host
// so the engine stays embeddable (a directory, a database, or an
// in-memory map all work). Versions are immutable: a Put for an
// existing (name, version) pair must fail, and superseded versions
// remain loadable for replay.
type DocumentStore interface {
	// Get retrieves a document by its own name and version.
	Get(name, version string) (*RuleDocument, error)

	// FindByRule retrieves the document of the given version that
	// defines the named rule.
	FindByRule(ruleName, version string) (*RuleDocument, error)

	// Put stores a new, already-validated document version.
	Put(doc *RuleDocument) error

	// ListVersions returns every stored version that defines the named
	// rule, oldest first.
	ListVersions(ruleName string) ([]string, error)
}

// InMemoryDocumentStore implements DocumentStore with a mutex-guarded
// map. Suitable for tests and for hosts that load documents themselves.
type InMemoryDocumentStore struct {
	docs map[string]map[string]*RuleDocument // name -> version -> doc
	mu   sync.RWMutex
}

// NewInMemoryDocumentStore creates an empty in-memory store.
func NewInMemoryDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{
		docs: make(map[string]map[string]*RuleDocument),
	}
}

func (s *InMemoryDocumentStore) Get(name, version string) (*RuleDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", name, ErrDocumentNotFound)
	}
	doc, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("document %q version %q: %w", name, version, ErrDocumentNotFound)
	}
	return doc, nil
}

func (s *InMemoryDocumentStore) FindByRule(ruleName, version string) (*RuleDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Deterministic scan order in case two documents of the same
	// version ever declare the same rule name.
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		doc, ok := s.docs[name][version]
		if !ok {
			continue
		}
		if _, ok := doc.Rules[ruleName]; ok {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("rule %q version %q: %w", ruleName, version, ErrRuleNotFound)
}

func (s *InMemoryDocumentStore) Put(doc *RuleDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.docs[doc.Name]
	if !ok {
		versions = make(map[string]*RuleDocument)
		s.docs[doc.Name] = versions
	}
	if _, exists := versions[doc.Version]; exists {
		return fmt.Errorf("document %q version %q: %w", doc.Name, doc.Version, ErrDocumentExists)
	}
	versions[doc.Version] = doc
	return nil
}

func (s *InMemoryDocumentStore) ListVersions(ruleName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []*RuleDocument
	for _, versions := range s.docs {
		for _, doc := range versions {
			if _, ok := doc.Rules[ruleName]; ok {
				found = append(found, doc)
			}
		}
	}

	// Oldest first. Creation timestamps are RFC 3339 strings, so a
	// lexical comparison orders them chronologically; the version string
	// breaks ties (and orders documents with no timestamp at all).
	sort.Slice(found, func(i, j int) bool {
		if found[i].CreatedAt != found[j].CreatedAt {
			return found[i].CreatedAt < found[j].CreatedAt
		}
		return found[i].Version < found[j].Version
	})

	out := make([]string, len(found))
	for i, doc := range found {
		out[i] = doc.Version
	}
	return out, nil
}
