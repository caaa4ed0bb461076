package store

import (
	"database/sql"
	"fmt"
)

// CommitBatch replaces everything stored for the batch's document with the
// buffered facts within a single transaction. Readers never observe a
// partially replaced document.
func (s *Store) CommitBatch(batch *Batch) error {
	return s.commit(batch, true)
}

// AppendBatch adds the buffered facts to the batch's document without
// removing what is already stored. Appending the same batch twice
// duplicates its facts.
func (s *Store) AppendBatch(batch *Batch) error {
	return s.commit(batch, false)
}

func (s *Store) commit(batch *Batch, replace bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := deleteDocumentTx(tx, batch.Document.Path); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	if err := insertBatchTx(tx, batch); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func insertBatchTx(tx *sql.Tx, batch *Batch) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	doc := batch.Document
	docID, err := upsertDocumentTx(tx, &doc)
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	batch.Document.ID = docID

	for _, ref := range batch.TypeRefs {
		ref.DocumentID = docID
		if _, err := insertTypeRefTx(tx, &ref); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	for _, imp := range batch.Imports {
		imp.DocumentID = docID
		if _, err := insertImportTx(tx, &imp); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	for _, pkg := range batch.Packages {
		pkg.DocumentID = docID
		if _, err := insertPackageTx(tx, &pkg); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	return nil
}

// MoveDocument re-keys the document at from to the path to, keeping its
// facts. The move is a removal of to (if present) followed by a rename.
func (s *Store) MoveDocument(from, to string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("move document: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := deleteDocumentTx(tx, to); err != nil {
		return false, fmt.Errorf("move document: %w", err)
	}
	res, err := tx.Exec("UPDATE documents SET path = ? WHERE path = ?", to, from)
	if err != nil {
		return false, fmt.Errorf("move document %s: %w", from, err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("move document: %w", err)
	}
	return n > 0, nil
}
