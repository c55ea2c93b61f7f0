package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/wisenet/wisenet-backend/internal/platform/embedding"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// IndexManager declares the full-text and vector indexes for a label the
// first time something with that label is persisted. All statements use
// IF NOT EXISTS, so a second process racing on the same label is harmless.
type IndexManager struct {
	store Store
	log   *logger.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

func NewIndexManager(store Store, log *logger.Logger) *IndexManager {
	return &IndexManager{
		store:   store,
		log:     log.With("component", "index_manager"),
		ensured: make(map[string]bool),
	}
}

// labelHasTitle reports whether the label carries title/title_vector fields.
func labelHasTitle(label string) bool {
	switch label {
	case LabelNode, LabelDocument, LabelWebPage:
		return true
	}
	return false
}

// Ensure creates the label's indexes once per process lifetime.
func (m *IndexManager) Ensure(ctx context.Context, label string) error {
	m.mu.Lock()
	if m.ensured[label] {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	stmts := []string{
		fmt.Sprintf(
			"CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (n:%s) ON EACH [n.content]",
			ContentFulltextIndex(label), label,
		),
		vectorIndexDDL(ContentVectorIndex(label), label, "content_vector"),
	}
	if labelHasTitle(label) {
		stmts = append(stmts,
			fmt.Sprintf(
				"CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (n:%s) ON EACH [n.title]",
				TitleFulltextIndex(label), label,
			),
			vectorIndexDDL(TitleVectorIndex(label), label, "title_vector"),
		)
	}
	for _, stmt := range stmts {
		if _, err := m.store.Run(ctx, stmt, nil); err != nil {
			return StoreErr(fmt.Sprintf("ensure indexes for %s", label), err)
		}
	}

	m.mu.Lock()
	m.ensured[label] = true
	m.mu.Unlock()
	m.log.Debug("indexes ensured", "label", label)
	return nil
}

func vectorIndexDDL(name, label, property string) string {
	return fmt.Sprintf(
		"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
		name, label, property, embedding.Dimensions,
	)
}
