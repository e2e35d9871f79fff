// Package vectorstore maintains the semantic index behind skill search.
package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
)

// skillCollection is the single collection holding all skill embeddings.
// Skills are a shared library, not per-user data.
const skillCollection = "skills"

// SearchResult is a single semantic-search hit.
type SearchResult struct {
	SkillUID string
	Name     string
	Content  string
	Score    float32
}

// Store wraps chromem-go with disk persistence.
type Store struct {
	mu      sync.RWMutex
	db      *chromem.DB
	dataDir string
	embedFn chromem.EmbeddingFunc
}

// New creates (or opens) the persistent vector store at dataDir/vectorstore/.
// embedFunc is the embedding function to use; pass
// chromem.NewEmbeddingFuncOpenAICompat pointed at an OpenAI-compatible
// embeddings endpoint.
func New(dataDir string, embedFunc chromem.EmbeddingFunc) (*Store, error) {
	dir := filepath.Join(dataDir, "vectorstore")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrap(err, "create vectorstore dir")
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, errors.Wrap(err, "open vectorstore")
	}
	return &Store{db: db, dataDir: dir, embedFn: embedFunc}, nil
}

func (s *Store) collection() (*chromem.Collection, error) {
	col := s.db.GetCollection(skillCollection, s.embedFn)
	if col != nil {
		return col, nil
	}
	col, err := s.db.CreateCollection(skillCollection, nil, s.embedFn)
	if err != nil {
		return nil, errors.Wrap(err, "create skill collection")
	}
	return col, nil
}

// UpsertSkill indexes (or re-indexes) a skill. The document id is the skill
// UID so re-saving a skill replaces its embedding.
func (s *Store) UpsertSkill(ctx context.Context, skillUID, name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.collection()
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:      skillUID,
		Content: content,
		Metadata: map[string]string{
			"name": name,
		},
	}
	return col.AddDocument(ctx, doc)
}

// DeleteSkill drops a skill's embedding.
func (s *Store) DeleteSkill(ctx context.Context, skillUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.collection()
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, skillUID)
}

// SearchSimilar returns the top-k skills most semantically similar to the
// query.
func (s *Store) SearchSimilar(ctx context.Context, query string, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.collection()
	if err != nil {
		return nil, err
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var results []chromem.Result
	// chromem-go sometimes throws "nResults must be <= number of documents"
	// despite the Count check. Step down k if it fails.
	for attemptK := k; attemptK > 0; attemptK-- {
		results, err = col.Query(ctx, query, attemptK, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			SkillUID: r.ID,
			Name:     r.Metadata["name"],
			Content:  r.Content,
			Score:    r.Similarity,
		})
	}
	return out, nil
}
