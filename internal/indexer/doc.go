// Package indexer coordinates document processing: chunk, then commit.
//
// The indexer runs the chunker on each document and commits the resulting
// chunk set to storage in a single transaction, managing concurrency and
// per-document failures.
//
// # Basic Usage
//
//	idx, err := indexer.New(store, chunker, indexer.Options{Workers: 4})
//
//	results, stats, err := idx.ProcessDocuments(ctx, indexer.Request{
//	    Documents: docs,
//	    Config:    cfg.Processing(),
//	})
//
//	fmt.Printf("Processed %d documents in %v\n", stats.DocumentsProcessed, stats.Duration)
//
// # Document Lifecycle
//
// Each document moves through the documents table:
//
//  1. processing: recorded before the pipeline starts
//  2. ready: the new chunk set replaced the previous one atomically
//  3. failed: the error is recorded, the previous chunk set stays in place
//
// Only complete chunk sets are ever persisted. A crash mid-document leaves
// the previously committed version intact.
//
// # Incremental Processing
//
// A document whose title, text and processing configuration hash to the
// committed content hash is skipped unless Request.Force is set. Failed
// documents are always reprocessed.
//
// # Concurrency
//
// Documents run on an errgroup bounded by Options.Workers (default NumCPU).
// Stages inside a document run sequentially. A failing document never aborts
// its siblings; it is reported as a *DocumentError carrying the stage it
// failed at. Two runs on the same document id never overlap: the second
// fails with ErrDocumentBusy.
//
// # Metrics
//
// The indexer records OpenTelemetry counters for processed, skipped and
// failed documents and for committed chunks on the global meter provider.
package indexer
