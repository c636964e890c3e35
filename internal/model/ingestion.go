package model

import "time"

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobRunning             JobStatus = "running"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
	JobFailed              JobStatus = "failed"
)

// DocStatus is the lifecycle state of one source file within a dataset.
type DocStatus string

const (
	DocQueued     DocStatus = "queued"
	DocProcessing DocStatus = "processing"
	DocOK         DocStatus = "ok"
	DocSkipped    DocStatus = "skipped"
	DocFailed     DocStatus = "failed"
)

// JobCounters are incremented as documents are processed.
type JobCounters struct {
	FilesDiscovered     int `json:"files_discovered" bson:"files_discovered"`
	FilesProcessed      int `json:"files_processed" bson:"files_processed"`
	FilesFailed         int `json:"files_failed" bson:"files_failed"`
	PagesProcessed      int `json:"pages_processed" bson:"pages_processed"`
	PagesWithoutText    int `json:"pages_without_text" bson:"pages_without_text"`
	ChunksEmitted       int `json:"chunks_emitted" bson:"chunks_emitted"`
	LangUndetectedCount int `json:"lang_undetected_count" bson:"lang_undetected_count"`
}

// Add returns c with every field of d added.
func (c JobCounters) Add(d JobCounters) JobCounters {
	c.FilesDiscovered += d.FilesDiscovered
	c.FilesProcessed += d.FilesProcessed
	c.FilesFailed += d.FilesFailed
	c.PagesProcessed += d.PagesProcessed
	c.PagesWithoutText += d.PagesWithoutText
	c.ChunksEmitted += d.ChunksEmitted
	c.LangUndetectedCount += d.LangUndetectedCount
	return c
}

// EmbeddingCounters track the vectorization step of a job.
type EmbeddingCounters struct {
	FilesEmbedded        int `json:"files_embedded" bson:"files_embedded"`
	EmbeddingsStored     int `json:"embeddings_stored" bson:"embeddings_stored"`
	FilesEmbeddingFailed int `json:"files_embedding_failed" bson:"files_embedding_failed"`
}

// Add returns c with every field of d added.
func (c EmbeddingCounters) Add(d EmbeddingCounters) EmbeddingCounters {
	c.FilesEmbedded += d.FilesEmbedded
	c.EmbeddingsStored += d.EmbeddingsStored
	c.FilesEmbeddingFailed += d.FilesEmbeddingFailed
	return c
}

// Job is the bookkeeping record of an ingestion run, one per dataset.
type Job struct {
	ID                string            `json:"id" bson:"_id"`
	DatasetName       string            `json:"dataset_name" bson:"dataset_name"`
	InputFolderRef    string            `json:"input_folder_ref" bson:"input_folder_ref"`
	OutputFolderRef   string            `json:"output_folder_ref" bson:"output_folder_ref"`
	Status            JobStatus         `json:"status" bson:"status"`
	Counters          JobCounters       `json:"counters" bson:"counters"`
	EmbeddingCounters EmbeddingCounters `json:"embedding_counters" bson:"embedding_counters"`
	CreatedAt         time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" bson:"updated_at"`
}

// DocCounts are overwritten after each processing attempt.
type DocCounts struct {
	PagesTotal          int `json:"pages_total" bson:"pages_total"`
	PagesWithoutText    int `json:"pages_without_text" bson:"pages_without_text"`
	ChunksEmitted       int `json:"chunks_emitted" bson:"chunks_emitted"`
	LangUndetectedCount int `json:"lang_undetected_count" bson:"lang_undetected_count"`
}

// Doc is the bookkeeping record of one source file within one dataset.
// Embedded implies EmbeddingsCount > 0 and a non-empty VectorIndexName.
type Doc struct {
	ID              string     `json:"id" bson:"_id"`
	JobID           string     `json:"job_id" bson:"job_id"`
	DatasetName     string     `json:"dataset_name" bson:"dataset_name"`
	SourceFileID    string     `json:"source_file_id" bson:"source_file_id"`
	SourcePath      string     `json:"source_path" bson:"source_path"`
	SourceURL       string     `json:"source_url" bson:"source_url"`
	OutputFileID    string     `json:"output_file_id" bson:"output_file_id"`
	OutputPath      string     `json:"output_path" bson:"output_path"`
	Status          DocStatus  `json:"status" bson:"status"`
	Message         string     `json:"message" bson:"message"`
	Counts          DocCounts  `json:"counts" bson:"counts"`
	Embedded        bool       `json:"embedded" bson:"embedded"`
	EmbeddingsCount int        `json:"embeddings_count" bson:"embeddings_count"`
	VectorIndexName string     `json:"vector_index_name" bson:"vector_index_name"`
	EmbeddedAt      *time.Time `json:"embedded_at,omitempty" bson:"embedded_at"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" bson:"updated_at"`
}
