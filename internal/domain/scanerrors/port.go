package scanerrors

import "context"

// Repository stores failures the scan workflow absorbed instead of returning.
type Repository interface {
	Save(ctx context.Context, e *ScanError) error
	// ListByScan returns the newest entries for one scan owned by userID.
	ListByScan(ctx context.Context, userID, scanID string, limit int) ([]*ScanError, error)
}
