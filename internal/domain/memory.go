package domain

import "time"

// MemoryItem is one free-text memory owned by the semantic index.
// Items are positionally aligned with their embedding vectors; the pair
// is only ever mutated through the index, never independently.
type MemoryItem struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ScoredMemory is a retrieval hit with its raw L2 distance and the
// derived similarity score (1 / (1 + distance)).
type ScoredMemory struct {
	MemoryItem
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// MemoryStats summarizes the semantic index.
type MemoryStats struct {
	TotalMemories int            `json:"total_memories"`
	UniqueUsers   int            `json:"unique_users"`
	PerUser       map[string]int `json:"user_memory_counts"`
	IndexSize     int            `json:"index_size"`
	Model         string         `json:"model"`
	Dimension     int            `json:"dimension"`
}
