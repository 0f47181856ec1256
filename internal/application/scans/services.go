package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/iaccessible/internal/application"
	"github.com/bryanwahyu/iaccessible/internal/domain/credits"
	"github.com/bryanwahyu/iaccessible/internal/domain/scanerrors"
	domain "github.com/bryanwahyu/iaccessible/internal/domain/scans"
	"github.com/bryanwahyu/iaccessible/internal/logging"
)

// DefaultWebpageScanCost is the credit price of one ad-hoc webpage scan.
const DefaultWebpageScanCost int64 = 10

// Service implements use-cases untuk Scan.
// Service holds no per-request state and is safe for concurrent use.
type Service struct {
	Repo    domain.Repository
	Ledger  credits.Ledger
	Engines domain.EngineFactory
	// Archive and Errors are optional.
	Archive domain.ReportArchive
	Errors  scanerrors.Repository
	Clock   application.Clock
	Logger  *zap.Logger

	Cost          int64
	EngineTimeout time.Duration
}

//
// ==== USE CASES ====
//

// ScanWebpageCommand is one authenticated scan request.
type ScanWebpageCommand struct {
	UserID string
	// URL is echoed back exactly as the caller sent it.
	URL string
	// Target is the cleaned URL handed to the engine and stored. Empty means URL.
	Target   string
	Services *domain.Services
}

// ScanWebpageResult is the body of a successful response.
type ScanWebpageResult struct {
	Message               string                   `json:"-"`
	URL                   string                   `json:"url"`
	Services              domain.Services          `json:"services"`
	Report                *domain.Report           `json:"report,omitempty"`
	CreditDeductionStatus credits.SettlementStatus `json:"creditDeductionStatus"`
	ScanID                domain.ScanID            `json:"scanId,omitempty"`
}

func (cmd ScanWebpageCommand) target() string {
	if cmd.Target == "" {
		return cmd.URL
	}
	return cmd.Target
}

// Validate checks that the required request fields are present.
func (cmd ScanWebpageCommand) Validate() error {
	if strings.TrimSpace(cmd.target()) == "" {
		return &ValidationError{Field: "URL"}
	}
	if cmd.Services == nil {
		return &ValidationError{Field: "servicesToScan"}
	}
	return nil
}

// ScanWebpage runs the analysis, records the evidence and settles the cost.
// Only validation, engine failures and a missing report are returned as
// errors; persistence and billing faults are absorbed into the result.
func (s *Service) ScanWebpage(ctx context.Context, cmd ScanWebpageCommand) (*ScanWebpageResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	log := s.logger().With(logging.UserID(cmd.UserID), logging.URL(cmd.target()))

	res := &ScanWebpageResult{
		URL:                   cmd.URL,
		Services:              *cmd.Services,
		CreditDeductionStatus: credits.StatusPending,
	}

	if cmd.Services.Accessibility {
		report, label, err := s.analyze(ctx, log, cmd.target())
		if err != nil {
			return nil, err
		}
		res.Report = report

		// evidence and billing must survive a client that hangs up mid-request
		bg := context.WithoutCancel(ctx)
		scanID, persisted := s.persist(bg, log, cmd, report, label)
		switch {
		case cmd.UserID == "":
			res.CreditDeductionStatus = credits.StatusNoUserID
		case persisted:
			res.ScanID = scanID
			res.CreditDeductionStatus = s.settle(bg, log, cmd, scanID)
		}
		log.Info("credit deduction completed", logging.Status(string(res.CreditDeductionStatus)))
	}

	if res.Report == nil && cmd.Services.Accessibility {
		return nil, ErrReportUnavailable
	}

	if res.Report != nil {
		res.Message = fmt.Sprintf("Accessibility scan completed for URL: %s", cmd.URL)
	} else {
		res.Message = fmt.Sprintf("Scan request processed for URL: %s. Accessibility scan not requested or no report generated.", cmd.URL)
	}
	return res, nil
}

// analyze acquires an engine for this request, runs it, and always releases it.
func (s *Service) analyze(ctx context.Context, log *zap.Logger, target string) (report *domain.Report, label string, err error) {
	label = ScanLabel(s.now(), target)

	engine := s.Engines()
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			log.Error("closing accessibility engine", zap.Error(cerr))
			s.recordError(context.WithoutCancel(ctx), scanerrors.PhaseRelease, "", "", target, cerr)
			return
		}
		log.Debug("accessibility engine closed")
	}()

	if s.EngineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.EngineTimeout)
		defer cancel()
	}

	log.Info("initiating accessibility scan", logging.Label(label))
	report, err = engine.GetCompliance(ctx, target, label)
	if err != nil {
		log.Error("accessibility scan failed", zap.Error(err))
		return nil, label, &AnalysisError{Err: err}
	}
	if report.IsEmpty() {
		log.Error("scan completed but no report was generated")
		return nil, label, ErrNoReport
	}
	log.Info("accessibility scan completed", zap.Int("findings", len(report.Results)))
	return report, label, nil
}

// persist writes the ScanRecord and then its items. The second return value
// reports whether the ScanRecord itself was stored.
func (s *Service) persist(ctx context.Context, log *zap.Logger, cmd ScanWebpageCommand, report *domain.Report, label string) (domain.ScanID, bool) {
	if cmd.UserID == "" {
		log.Warn("no user id available, skipping scan persistence")
		return "", false
	}

	now := s.now()
	rec := &domain.ScanRecord{
		ID:                domain.ScanID(uuid.New().String()),
		UserID:            cmd.UserID,
		TargetURL:         report.TargetURL(cmd.target()),
		ScanLabel:         label,
		ScanType:          domain.TypeWebpageAccessibility,
		ServicesRequested: *cmd.Services,
		Status:            domain.StatusCompleted,
		StartTimestamp:    report.StartTime(now),
		EndTimestamp:      now,
		CreditsConsumed:   s.cost(),
		SummaryCounts:     report.Summary.Counts,
		ToolID:            report.ToolID,
		RuleArchive:       report.Summary.RuleArchive,
		Policies:          report.Summary.Policies,
		NumRulesExecuted:  report.NumExecuted,
	}
	log = log.With(logging.ScanID(string(rec.ID)))

	if s.Archive != nil {
		key := fmt.Sprintf("%s/webpage/%s.json", cmd.UserID, rec.ID)
		if u, err := s.Archive.Put(ctx, key, report); err != nil {
			log.Warn("archiving raw report", zap.Error(err))
			s.recordError(ctx, scanerrors.PhaseArchive, cmd.UserID, string(rec.ID), cmd.target(), err)
		} else {
			rec.ReportURL = u
		}
	}

	if err := s.Repo.SaveScan(ctx, rec); err != nil {
		log.Error("saving scan record", zap.Error(err))
		s.recordError(ctx, scanerrors.PhasePersist, cmd.UserID, "", cmd.target(), err)
		return "", false
	}
	log.Info("scan record saved")

	if items := report.ResultItems(rec.ID, cmd.target()); len(items) > 0 {
		if err := s.Repo.SaveResultItems(ctx, rec.ID, items); err != nil {
			log.Error("saving scan result items", zap.Error(err), zap.Int("count", len(items)))
			s.recordError(ctx, scanerrors.PhasePersist, cmd.UserID, string(rec.ID), cmd.target(), err)
		} else {
			log.Info("scan result items saved", zap.Int("count", len(items)))
		}
	}
	return rec.ID, true
}

// settle debits the scan cost. Failures become a status, never an error.
func (s *Service) settle(ctx context.Context, log *zap.Logger, cmd ScanWebpageCommand, scanID domain.ScanID) credits.SettlementStatus {
	cost := s.cost()
	tx, err := s.Ledger.Debit(ctx, credits.Debit{
		UserID:        cmd.UserID,
		Cost:          cost,
		Type:          credits.TypeScanUsageWebpageAccessibility,
		Description:   fmt.Sprintf("Ad-hoc accessibility scan for URL: %s", cmd.target()),
		RelatedScanID: string(scanID),
		At:            s.now(),
	})
	switch {
	case err == nil:
		log.Info("credits deducted", zap.Int64("cost", cost), zap.Int64("balance_after", tx.BalanceAfter))
		return credits.StatusSuccess
	case errors.Is(err, credits.ErrProfileNotFound):
		log.Error("CRITICAL: user profile not found for authenticated user during credit deduction")
		s.recordError(ctx, scanerrors.PhaseSettle, cmd.UserID, string(scanID), cmd.target(), err)
		return credits.StatusProfileNotFound
	case errors.Is(err, credits.ErrInsufficientFunds):
		log.Warn("insufficient credits for scan", zap.Int64("cost", cost))
		return credits.StatusInsufficientFunds
	default:
		log.Error("credit deduction failed", zap.Error(err))
		s.recordError(ctx, scanerrors.PhaseSettle, cmd.UserID, string(scanID), cmd.target(), err)
		return credits.StatusDeductionFailed
	}
}

func (s *Service) recordError(ctx context.Context, phase scanerrors.Phase, userID, scanID, target string, cause error) {
	if s.Errors == nil {
		return
	}
	details, _ := json.Marshal(map[string]string{"error": cause.Error()})
	e := &scanerrors.ScanError{
		UserID:      userID,
		ScanID:      scanID,
		URL:         target,
		Phase:       phase,
		Message:     cause.Error(),
		DetailsJSON: string(details),
		CreatedAt:   s.now(),
	}
	if err := s.Errors.Save(ctx, e); err != nil {
		s.logger().Warn("recording scan error", zap.Error(err), zap.String("phase", string(phase)))
	}
}

// Latest ambil N scan terakhir milik user
func (s *Service) Latest(ctx context.Context, userID string, limit int) ([]*domain.ScanRecord, error) {
	return s.Repo.Latest(ctx, userID, limit)
}

// Page returns one page of the caller's scans, newest first.
func (s *Service) Page(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	return s.Repo.Paginate(ctx, userID, page, pageSize)
}

// Get ambil 1 scan by id
func (s *Service) Get(ctx context.Context, userID string, id domain.ScanID) (*domain.ScanRecord, error) {
	rec, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrScanNotFound
	}
	return rec, nil
}

// Items returns the findings of a scan owned by userID.
func (s *Service) Items(ctx context.Context, userID string, id domain.ScanID) ([]domain.ResultItem, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.Repo.ListItems(ctx, id)
}

// ScanErrors lists failures absorbed while persisting or settling a scan.
func (s *Service) ScanErrors(ctx context.Context, userID string, id domain.ScanID, limit int) ([]*scanerrors.ScanError, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if s.Errors == nil {
		return []*scanerrors.ScanError{}, nil
	}
	return s.Errors.ListByScan(ctx, userID, string(id), limit)
}

// ScanLabel builds the traceability label "webpage-<RFC3339 ms>-<escaped url>".
func ScanLabel(at time.Time, target string) string {
	return fmt.Sprintf("webpage-%s-%s", at.UTC().Format("2006-01-02T15:04:05.000Z07:00"), url.QueryEscape(target))
}

// helper
func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *Service) cost() int64 {
	if s.Cost <= 0 {
		return DefaultWebpageScanCost
	}
	return s.Cost
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger.With(logging.Component("scans"))
}
