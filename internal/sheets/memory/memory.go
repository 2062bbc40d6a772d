// Package memory is an in-process TransactionWriter for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"finanzas/internal/core"
	"finanzas/internal/sheets"
)

var _ sheets.TransactionWriter = (*Writer)(nil)

type Writer struct {
	mu    sync.Mutex
	rows  []core.Transaction
	index map[string]int
}

func New() *Writer {
	return &Writer{index: make(map[string]int)}
}

// Append stores the transaction and returns a synthetic row reference.
func (w *Writer) Append(_ context.Context, tx core.Transaction) (string, error) {
	if tx.ID == "" {
		return "", errors.New("transaction without id")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if i, ok := w.index[tx.ID]; ok {
		return ref(i), nil
	}
	w.rows = append(w.rows, tx)
	w.index[tx.ID] = len(w.rows)
	return ref(len(w.rows)), nil
}

// Rows returns the mirrored transactions in append order.
func (w *Writer) Rows() []core.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]core.Transaction(nil), w.rows...)
}

func ref(n int) string { return fmt.Sprintf("mem:%d", n) }
