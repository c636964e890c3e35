package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/id"
)

// MemoryLedger 进程内台账，用于测试与 --ledger.backend=memory。
type MemoryLedger struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
	docs map[string]*model.Doc
	ids  id.Generator
	now  func() time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger 创建空台账。
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		jobs: make(map[string]*model.Job),
		docs: make(map[string]*model.Doc),
		ids:  id.NewULIDGenerator(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes 检查业务主键唯一性。
func (l *MemoryLedger) EnsureIndexes(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seenJobs := make(map[string]bool, len(l.jobs))
	for _, j := range l.jobs {
		if seenJobs[j.DatasetName] {
			return errors.ErrLedgerConflict.WithMessagef("duplicate job for dataset %q", j.DatasetName)
		}
		seenJobs[j.DatasetName] = true
	}

	seenDocs := make(map[[2]string]bool, len(l.docs))
	for _, d := range l.docs {
		key := [2]string{d.DatasetName, d.SourceFileID}
		if seenDocs[key] {
			return errors.ErrLedgerConflict.WithMessagef("duplicate doc %q in dataset %q", d.SourceFileID, d.DatasetName)
		}
		seenDocs[key] = true
	}
	return nil
}

func (l *MemoryLedger) CreateOrUpdateJob(_ context.Context, datasetName, inputRef, outputRef string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, j := range l.jobs {
		if j.DatasetName == datasetName {
			j.InputFolderRef = inputRef
			j.OutputFolderRef = outputRef
			j.Status = model.JobRunning
			j.Counters = model.JobCounters{}
			j.EmbeddingCounters = model.EmbeddingCounters{}
			j.UpdatedAt = now
			return j.ID, nil
		}
	}

	j := &model.Job{
		ID:              l.ids.Generate(),
		DatasetName:     datasetName,
		InputFolderRef:  inputRef,
		OutputFolderRef: outputRef,
		Status:          model.JobRunning,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	l.jobs[j.ID] = j
	return j.ID, nil
}

func (l *MemoryLedger) UpdateJobCounters(_ context.Context, jobID string, delta model.JobCounters) error {
	return l.withJob(jobID, func(j *model.Job) {
		j.Counters = j.Counters.Add(delta)
	})
}

func (l *MemoryLedger) UpdateJobEmbeddingCounters(_ context.Context, jobID string, delta model.EmbeddingCounters) error {
	return l.withJob(jobID, func(j *model.Job) {
		j.EmbeddingCounters = j.EmbeddingCounters.Add(delta)
	})
}

func (l *MemoryLedger) FinishJob(_ context.Context, jobID string, status model.JobStatus) error {
	return l.withJob(jobID, func(j *model.Job) {
		j.Status = status
	})
}

func (l *MemoryLedger) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	j, ok := l.jobs[jobID]
	if !ok {
		return nil, errors.ErrJobNotFound.WithMessagef("ingestion job %s not found", jobID)
	}
	cp := *j
	return &cp, nil
}

func (l *MemoryLedger) CreateOrUpdateDoc(_ context.Context, src DocSource) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, d := range l.docs {
		if d.DatasetName == src.DatasetName && d.SourceFileID == src.SourceFileID {
			*d = model.Doc{
				ID:           d.ID,
				JobID:        src.JobID,
				DatasetName:  d.DatasetName,
				SourceFileID: d.SourceFileID,
				SourcePath:   src.SourcePath,
				SourceURL:    src.SourceURL,
				Status:       model.DocQueued,
				CreatedAt:    d.CreatedAt,
				UpdatedAt:    now,
			}
			return d.ID, nil
		}
	}

	d := &model.Doc{
		ID:           l.ids.Generate(),
		JobID:        src.JobID,
		DatasetName:  src.DatasetName,
		SourceFileID: src.SourceFileID,
		SourcePath:   src.SourcePath,
		SourceURL:    src.SourceURL,
		Status:       model.DocQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	l.docs[d.ID] = d
	return d.ID, nil
}

func (l *MemoryLedger) UpdateDocStatus(_ context.Context, docID string, status model.DocStatus, message string) error {
	return l.withDoc(docID, func(d *model.Doc) {
		d.Status = status
		d.Message = message
	})
}

func (l *MemoryLedger) UpdateDocOutput(_ context.Context, docID, outputFileID, outputPath string) error {
	return l.withDoc(docID, func(d *model.Doc) {
		d.OutputFileID = outputFileID
		d.OutputPath = outputPath
	})
}

func (l *MemoryLedger) UpdateDocCounts(_ context.Context, docID string, counts model.DocCounts) error {
	return l.withDoc(docID, func(d *model.Doc) {
		d.Counts = counts
	})
}

func (l *MemoryLedger) MarkDocEmbedded(_ context.Context, docID string, count int, indexName string) error {
	if err := validateEmbedded(count, indexName); err != nil {
		return err
	}
	return l.withDoc(docID, func(d *model.Doc) {
		at := d.UpdatedAt
		d.Embedded = true
		d.EmbeddingsCount = count
		d.VectorIndexName = indexName
		d.EmbeddedAt = &at
	})
}

func (l *MemoryLedger) IsDocEmbedded(ctx context.Context, sourceFileID, datasetName string) (bool, error) {
	d, err := l.FindDoc(ctx, datasetName, sourceFileID)
	if err != nil || d == nil {
		return false, err
	}
	return d.Embedded, nil
}

func (l *MemoryLedger) FindDoc(_ context.Context, datasetName, sourceFileID string) (*model.Doc, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, d := range l.docs {
		if d.DatasetName == datasetName && d.SourceFileID == sourceFileID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (l *MemoryLedger) GetDoc(_ context.Context, docID string) (*model.Doc, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	d, ok := l.docs[docID]
	if !ok {
		return nil, errors.ErrDocNotFound.WithMessagef("ingestion document %s not found", docID)
	}
	cp := *d
	return &cp, nil
}

func (l *MemoryLedger) ListDocs(_ context.Context, jobID string) ([]*model.Doc, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	docs := make([]*model.Doc, 0)
	for _, d := range l.docs {
		if d.JobID == jobID {
			cp := *d
			docs = append(docs, &cp)
		}
	}
	// ULID 按时间单调递增，作为同一时刻创建记录的次序。
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (l *MemoryLedger) Close(_ context.Context) error {
	return nil
}

func (l *MemoryLedger) withJob(jobID string, fn func(*model.Job)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	j, ok := l.jobs[jobID]
	if !ok {
		return errors.ErrJobNotFound.WithMessagef("ingestion job %s not found", jobID)
	}
	fn(j)
	j.UpdatedAt = l.now()
	return nil
}

func (l *MemoryLedger) withDoc(docID string, fn func(*model.Doc)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, ok := l.docs[docID]
	if !ok {
		return errors.ErrDocNotFound.WithMessagef("ingestion document %s not found", docID)
	}
	d.UpdatedAt = l.now()
	fn(d)
	return nil
}
