// Package retrieval answers scoped questions from the partitioned store.
//
// The Assembler searches every level of a scope's plan concurrently and
// returns the matches as labeled sections, most specific first. Service
// adds question embedding, reindexing, document upload and chat on top.
package retrieval
