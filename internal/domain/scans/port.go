package scans

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	SaveScan(ctx context.Context, s *ScanRecord) error
	// SaveResultItems writes every item in one atomic batch, assigning IDs.
	SaveResultItems(ctx context.Context, scanID ScanID, items []ResultItem) error
	Get(ctx context.Context, userID string, id ScanID) (*ScanRecord, error)
	Latest(ctx context.Context, userID string, limit int) ([]*ScanRecord, error)
	Paginate(ctx context.Context, userID string, page, pageSize int) (PaginatedResult, error)
	ListItems(ctx context.Context, scanID ScanID) ([]ResultItem, error)
}

// Engine is one scoped session with the accessibility analysis engine.
// Close must be called exactly once per Engine, whatever the outcome.
type Engine interface {
	GetCompliance(ctx context.Context, url, label string) (*Report, error)
	Close() error
}

// EngineFactory hands out a fresh Engine per request.
type EngineFactory func() Engine

// ReportArchive port (interface untuk penyimpanan raw report)
type ReportArchive interface {
	Put(ctx context.Context, key string, report *Report) (string, error)
}
