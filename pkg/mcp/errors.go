// Package mcp exposes chunking, search and cluster expansion as Model
// Context Protocol tools.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
