package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// SurveyMatchInput is the input for the survey match workflow.
type SurveyMatchInput struct {
	SurveyID string
}

// SurveyWorkflowID keeps one workflow per survey, so a redelivered upload
// event does not start a second run.
func SurveyWorkflowID(surveyID string) string {
	return "survey-match-" + surveyID
}

// SurveyMatchWorkflow runs extraction and matching for an uploaded survey.
// Transient failures are retried by the activity policy; a survey the
// pipeline rejects is recorded as failed and the workflow completes.
func SurveyMatchWorkflow(ctx workflow.Context, input SurveyMatchInput) (*SurveyOutcome, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting survey match workflow", "surveyID", input.SurveyID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var a *SurveyActivities
	var out SurveyOutcome
	if err := workflow.ExecuteActivity(ctx, a.ProcessSurvey, input.SurveyID).Get(ctx, &out); err != nil {
		logger.Error("survey processing exhausted retries", "surveyID", input.SurveyID, "error", err)
		return nil, err
	}

	logger.Info("Survey processed", "surveyID", out.SurveyID, "status", out.Status, "matchStatus", out.MatchStatus)
	return &out, nil
}
