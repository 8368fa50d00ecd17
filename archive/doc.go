// Package archive keeps a full-text searchable record of completed
// deliveries in a bleve index. It exists for operators ("what did we
// deliver for translation tasks last week"); the marketplace ledger
// remains the source of truth and the engine rebuilds its working
// state from the ledger, never from the archive.
package archive
