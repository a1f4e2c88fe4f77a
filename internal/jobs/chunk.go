package jobs

import (
	"encoding/json"
	"fmt"
)

// DefaultChunkSize bounds how many partitions a single partition or cluster
// job handles.
const DefaultChunkSize = 100

// MaxPartitions bounds the entries of a partition schema list, which bounds
// the depth of every graph the builder emits.
const MaxPartitions = 10000

// chunk splits items into consecutive slices of at most size elements,
// preserving input order.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// partitionChunks returns the serialised partition schema argument of every
// partition job. A single object schema yields one chunk holding the object.
func partitionChunks(p *Partitions, size int) ([]string, error) {
	entries, isList, err := p.entries()
	if err != nil {
		return nil, err
	}
	if !isList {
		compact, err := compactJSON(entries[0])
		if err != nil {
			return nil, err
		}
		return []string{compact}, nil
	}

	var out []string
	for _, c := range chunk(entries, size) {
		b, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("encode partition chunk: %w", err)
		}
		out = append(out, string(b))
	}
	return out, nil
}

func compactJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("decode partition schema: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode partition schema: %w", err)
	}
	return string(b), nil
}

// MaxDepth is the longest parent chain the builder emits for a table with
// schemaLen partition entries split into chunks of chunkSize. Vector graphs
// are never deeper than a table graph with one chunk.
func MaxDepth(chunkSize, schemaLen int) int {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunks := (schemaLen + chunkSize - 1) / chunkSize
	if chunks < 1 {
		chunks = 1
	}
	// create_table, partitions, load, geometry, index, then the cluster chain.
	return 5 + chunks
}
