package database

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// ScopeProvider opens unit-of-work scopes. Everything fn does through Conn(ctx)
// commits together when fn returns nil and rolls back otherwise.
type ScopeProvider interface {
	InScope(ctx context.Context, fn func(ctx context.Context) error) error
}

type scopeKey struct{}

type scope struct {
	tx *gorm.DB

	mu          sync.Mutex
	afterCommit []func(ctx context.Context)
}

// InScope runs fn inside a transaction carried by the returned context. A scope
// opened while another is active joins the outer one, so only the outermost
// scope commits.
func (db *DB) InScope(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return fn(ctx)
	}

	s := &scope{}
	err := db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s.tx = tx
		return fn(context.WithValue(ctx, scopeKey{}, s))
	})
	if err != nil {
		return err
	}

	for _, hook := range s.afterCommit {
		hook(ctx)
	}
	return nil
}

// Conn returns the transaction of the active scope, or a plain session bound to
// ctx when no scope is open.
func (db *DB) Conn(ctx context.Context) *gorm.DB {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return s.tx.WithContext(ctx)
	}
	return db.DB.WithContext(ctx)
}

// InScope reports whether ctx carries an open scope.
func InScope(ctx context.Context) bool {
	_, ok := ctx.Value(scopeKey{}).(*scope)
	return ok
}

// AfterCommit defers fn until the outermost scope in ctx commits. Hooks of a
// rolled back scope never run. Without a scope fn runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		fn(ctx)
		return
	}

	s.mu.Lock()
	s.afterCommit = append(s.afterCommit, fn)
	s.mu.Unlock()
}
