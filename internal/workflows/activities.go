package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/usecases"
)

// SurveyOutcome summarizes a processed survey for the workflow history.
type SurveyOutcome struct {
	SurveyID         string
	Status           string
	MatchStatus      domain.MatchStatus
	TopParcelID      string
	Candidates       int
	Error            string
}

// SurveyActivities holds the activity implementations for survey matching.
type SurveyActivities struct {
	Surveys *usecases.SurveyService
}

// ProcessSurvey extracts and matches one stored survey. A survey that ends
// up recorded as failed is an outcome, not a retryable error.
func (a *SurveyActivities) ProcessSurvey(ctx context.Context, surveyID string) (*SurveyOutcome, error) {
	sv, err := a.Surveys.Process(ctx, surveyID)
	if sv == nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("survey %s not found", surveyID), "survey_not_found", err)
		}
		return nil, err
	}

	out := &SurveyOutcome{SurveyID: sv.ID, Status: sv.Status}
	if sv.Match != nil {
		out.MatchStatus = sv.Match.Status
		out.Candidates = len(sv.Match.Candidates)
		if top, ok := sv.Match.Top(); ok {
			out.TopParcelID = top.ParcelID
		}
	}
	if err != nil {
		out.Error = err.Error()
		slog.Warn("survey processing failed", "survey_id", surveyID, "error", err)
	}
	return out, nil
}
