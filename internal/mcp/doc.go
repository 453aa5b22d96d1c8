// Package mcp exposes hierarchical retrieval as MCP tools.
//
// Tools:
//   - retrieve_context: assemble the ordered context for a scope and question
//   - ask: answer a question from that context (only when a chat model is configured)
//   - reindex_company: rebuild one company's partition from the corpus
//   - list_partitions: list partitions with a committed generation
//
// The server runs over stdio for local agents, or as a streamable HTTP
// handler mounted by the HTTP server.
package mcp
