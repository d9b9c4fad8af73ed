// Package retrieval answers questions about a working copy from its own
// documentation.
//
// Documentation files (READMEs, contributing guides, docs/ trees, Makefiles
// and similar) are split into chunks, embedded and held in an in-memory
// chromem-go collection per working copy. Lookup returns the chunks closest
// to the query, labelled with their source file.
package retrieval
