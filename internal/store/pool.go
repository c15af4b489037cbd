package store

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sync"
)

// DBFileName is the store file inside each root's cache directory.
const DBFileName = "vectors.db"

// Provider hands out the vector store that holds a knowledge root.
type Provider interface {
	For(root string) (VectorStore, error)
	// Release closes and forgets root's store, if open.
	Release(root string) error
}

// Pool opens one SQLiteStore per knowledge root on first use and keeps
// it open until Release or Close.
type Pool struct {
	mu     sync.Mutex
	dirFor func(root string) string
	stores map[string]*SQLiteStore
}

// Verify interface implementation at compile time
var _ Provider = (*Pool)(nil)

// NewPool creates a pool. dirFor maps a root to its cache directory.
func NewPool(dirFor func(root string) string) *Pool {
	return &Pool{dirFor: dirFor, stores: make(map[string]*SQLiteStore)}
}

// For returns root's store, opening it if needed.
func (p *Pool) For(root string) (VectorStore, error) {
	dir := p.dirFor(root)

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.stores[dir]; ok {
		return s, nil
	}
	s, err := NewSQLiteStore(filepath.Join(dir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store for %s: %w", root, err)
	}
	p.stores[dir] = s
	return s, nil
}

// Release closes root's store if it is open.
func (p *Pool) Release(root string) error {
	dir := p.dirFor(root)

	p.mu.Lock()
	s, ok := p.stores[dir]
	delete(p.stores, dir)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close()
}

// Close closes every open store.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for dir, s := range p.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.stores, dir)
	}
	return stderrors.Join(errs...)
}
