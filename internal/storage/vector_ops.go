package storage

import (
	"encoding/binary"
	"math"
	"strings"
)

// applyChunkFilters adds WHERE clause filters for chunk scans. The query must
// alias the chunks table as c.
func applyChunkFilters(query string, args []interface{}, filters *ChunkFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if len(filters.DocumentIDs) > 0 {
		query += " AND c.document_id IN (" + placeholders(len(filters.DocumentIDs)) + ")"
		args = append(args, stringArgs(filters.DocumentIDs)...)
	}

	if len(filters.ContentTypes) > 0 {
		query += " AND c.content_type IN (" + placeholders(len(filters.ContentTypes)) + ")"
		for _, ct := range filters.ContentTypes {
			args = append(args, string(ct))
		}
	}

	return query, args
}

// placeholders returns n comma-separated bind markers
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
