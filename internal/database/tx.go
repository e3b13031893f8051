package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type txKey struct{}

type connKey struct{}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

func scopedQueryer(ctx context.Context) (queryer, bool) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx, true
	}
	if conn, ok := ctx.Value(connKey{}).(*sql.Conn); ok {
		return conn, true
	}
	return nil, false
}

// RunInTx runs fn in a transaction carried by the ctx passed to it. The
// transaction commits when fn returns nil and rolls back otherwise. A nested
// call joins the outer transaction.
func (c *Connection) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	db, err := c.DB(ctx)
	if err != nil {
		return err
	}

	c.stmtMu.Lock()
	defer c.stmtMu.Unlock()

	var tx *sql.Tx
	if conn, ok := ctx.Value(connKey{}).(*sql.Conn); ok {
		tx, err = conn.BeginTx(ctx, nil)
	} else {
		tx, err = db.BeginTx(ctx, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("[MYSQL] ERROR: rollback failed: %v", rbErr)
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// withConn runs fn with every statement pinned to one connection, for
// session state such as FOREIGN_KEY_CHECKS.
func (c *Connection) withConn(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := scopedQueryer(ctx); ok {
		return fn(ctx)
	}

	db, err := c.DB(ctx)
	if err != nil {
		return err
	}

	c.stmtMu.Lock()
	defer c.stmtMu.Unlock()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	return fn(context.WithValue(ctx, connKey{}, conn))
}
