// Package model provides data models for the docqa service.
package model

// Chunk is a bounded slice of normalized document text.
// (DocID, PageIndex, ChunkIndex) is unique within a document.
//
// Field order matches the OCR artifact layout.
type Chunk struct {
	DocID          string `json:"doc_id"`
	FileName       string `json:"file_name"`
	Language       string `json:"language"`
	TotalPageCount int    `json:"total_page_count"`
	PageIndex      int    `json:"page_index"`
	ChunkIndex     int    `json:"chunk_index"`
	Text           string `json:"text"`
	SourceURL      string `json:"source_url"`
}

// DocumentResult is the output of processing one document.
type DocumentResult struct {
	DocID            string  `json:"doc_id"`
	FileName         string  `json:"file_name"`
	Language         string  `json:"language"`
	TotalPageCount   int     `json:"total_page_count"`
	PagesWithoutText int     `json:"pages_without_text"`
	Chunks           []Chunk `json:"chunks"`
	ChunksEmitted    int     `json:"chunks_emitted"`
	LangUndetected   bool    `json:"lang_undetected"`
}

// Vector metadata keys.
const (
	MetaDatasetName  = "dataset_name"
	MetaDocumentID   = "document_id"
	MetaDocID        = "doc_id"
	MetaSourceFile   = "source_file"
	MetaSourceURL    = "source_url"
	MetaText         = "text"
	MetaPageIndex    = "page_index"
	MetaChunkIndex   = "chunk_index"
	MetaLanguage     = "language"
	MetaTitle        = "title"
	MetaCourtName    = "court_name"
	MetaCaseNumber   = "case_number"
	MetaDecisionDate = "decision_date"
)

// RetrievedChunk is one ranked match from the vector index.
// Metadata values are strings, ints, or floats as stored.
type RetrievedChunk struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// MetaString returns a metadata value as a string, or "" when missing.
func (c RetrievedChunk) MetaString(key string) string {
	v, ok := c.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return stringify(t)
	}
}

// MetaInt returns a metadata value as an int.
func (c RetrievedChunk) MetaInt(key string) (int, bool) {
	return toInt(c.Metadata[key])
}

// Citation links an inline [CIT:n] marker to its source chunk.
type Citation struct {
	Label        int     `json:"label"`
	ID           string  `json:"id"`
	Score        float64 `json:"score"`
	SourceFile   string  `json:"source_file,omitempty"`
	SourceURL    string  `json:"source_url,omitempty"`
	PageIndex    *int    `json:"page_index,omitempty"`
	ChunkIndex   *int    `json:"chunk_index,omitempty"`
	Title        string  `json:"title,omitempty"`
	CourtName    string  `json:"court_name,omitempty"`
	CaseNumber   string  `json:"case_number,omitempty"`
	DecisionDate string  `json:"decision_date,omitempty"`
}
