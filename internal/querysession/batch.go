// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package querysession reassembles the asynchronous notification stream the
// tools service emits for one executed query into an ordered sequence of
// materialized batch results. Notifications are pushed by the connection's
// reader goroutine; callers pull finished batches through a bounded channel,
// so a slow consumer can never stall the reader.
//
// One Session exists per submitted SQL text. The text may contain multiple
// statements; the backend attributes one batch per statement (and one batch
// per result set for statements producing several), and batches are yielded
// in exactly the order the backend reports them.
package querysession

// Column describes one column of a batch's result set.
type Column struct {
	Name     string
	DataType string
}

// Batch is the result of one statement within a submitted query text.
// Rows preserve arrival order exactly; the client never sorts or dedups.
type Batch struct {
	// Columns is the ordered column metadata, empty for statements with no
	// result set (DDL, DML without OUTPUT).
	Columns []Column
	// Rows holds the ordered value tuples, possibly assembled from several
	// row-data chunks.
	Rows [][]any
	// Message is informational text attached by the backend, e.g.
	// "3 rows affected" or a raised error message.
	Message string
	// SourceText is the statement text the backend attributes to this batch.
	SourceText string
	// IsError is set when the backend flagged a statement-level failure.
	// Sibling batches in the same query still execute.
	IsError bool
}

// empty reports whether the batch carries no result set and no message.
// Whether such batches appear in query output is a configuration choice.
func (b *Batch) empty() bool {
	return len(b.Columns) == 0 && len(b.Rows) == 0 && b.Message == ""
}
