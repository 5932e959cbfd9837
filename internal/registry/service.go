package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/utils"
	"github.com/sta1300/notifier-backend/internal/utils/errors"
)

//Service Registration upserts and registry hygiene.
type Service struct {
	repo Repository
	now  func() time.Time
}

//NewService -_-
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: utils.GetTimeNow}
}

//Result Outcome of a registration.
type Result struct {
	Registration Registration
	// Superseded older registrations of the same device, with their deletion outcome.
	Superseded []WriteOutcome
}

//Register Upserts the registration of a device. Registrations of the same device stored under other
//document ids are deleted first.
func (s *Service) Register(ctx context.Context, req Request) (Result, error) {
	logger := logging.FromContext(ctx).Named("registry.Register")

	if req.Token == "" {
		return Result{}, &errors.MalformedRequestError{Msg: "token is required"}
	}

	if !LooksLikeFCMToken(req.Token) {
		// some valid tokens come in other shapes, keep going
		logger.Warnf("Suspicious token format: %v", utils.Redact(req.Token, 50))
	}

	docID := req.DocumentID()

	var result Result

	if req.DeviceID != "" {
		existing, err := s.repo.FindByDevice(ctx, req.DeviceID)
		if err != nil {
			return Result{}, err
		}

		var stale []string
		for _, reg := range existing {
			if reg.ID != docID {
				stale = append(stale, reg.ID)
			}
		}

		if len(stale) > 0 {
			result.Superseded = s.repo.DeleteMany(ctx, stale)
			failed := Failed(result.Superseded)
			for _, o := range failed {
				logger.Warnf("Could not delete superseded registration %v: %v", utils.Redact(o.ID, 20), o.Err)
			}
			logger.Infof("Deleted %v old registrations for device %v", len(stale)-len(failed), req.DeviceID)
		}
	}

	reg, err := s.repo.Upsert(ctx, docID, req, s.now())
	if err != nil {
		return result, fmt.Errorf("Error while saving registration: %w", err)
	}
	result.Registration = reg

	logger.Infof("Token registered: %v", utils.Redact(req.Token, 30))

	return result, nil
}

//SweepReport Outcome of a duplicate token sweep.
type SweepReport struct {
	Total      int
	Duplicates int
	Deleted    int
	Failed     []WriteOutcome
}

//CleanDuplicates Deletes every registration whose token was already seen on an earlier registration
//(in id order), so each token value is kept exactly once.
func (s *Service) CleanDuplicates(ctx context.Context) (SweepReport, error) {
	logger := logging.FromContext(ctx).Named("registry.CleanDuplicates")

	regs, err := s.repo.List(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Total: len(regs)}

	seen := make(map[string]string, len(regs))
	var duplicates []string
	for _, reg := range regs {
		if reg.Token == "" {
			continue
		}
		if first, ok := seen[reg.Token]; ok {
			logger.Debugf("Found duplicate for token %v: %v (kept %v)", utils.Redact(reg.Token, 15), reg.ID, first)
			duplicates = append(duplicates, reg.ID)
			continue
		}
		seen[reg.Token] = reg.ID
	}

	report.Duplicates = len(duplicates)
	if len(duplicates) == 0 {
		logger.Infof("No duplicates found among %v registrations", report.Total)
		return report, nil
	}

	outcomes := s.repo.DeleteMany(ctx, duplicates)
	report.Failed = Failed(outcomes)
	report.Deleted = len(outcomes) - len(report.Failed)

	logger.Infof("Duplicate sweep: %v registrations, %v duplicates, %v deleted, %v failed",
		report.Total, report.Duplicates, report.Deleted, len(report.Failed))

	return report, nil
}

//Summary Registration as shown by maintenance tools. Carries only a token prefix.
type Summary struct {
	ID          string
	TokenPrefix string
	Platform    string
	CreatedAt   time.Time
	LastUsed    *time.Time
}

//Inventory Lists registrations for maintenance.
func (s *Service) Inventory(ctx context.Context) ([]Summary, error) {
	regs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(regs))
	for _, reg := range regs {
		prefix := "INVALID"
		if reg.Token != "" {
			prefix = utils.Redact(reg.Token, 20)
		}
		summaries = append(summaries, Summary{
			ID:          reg.ID,
			TokenPrefix: prefix,
			Platform:    reg.Platform,
			CreatedAt:   reg.CreatedAt,
			LastUsed:    reg.LastUsed,
		})
	}

	return summaries, nil
}
