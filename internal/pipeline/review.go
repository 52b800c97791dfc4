package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"newsbrief/internal/core"
	"newsbrief/internal/logger"
)

// FileReviewRequester is the default ReviewRequester: it drops a JSON review
// request next to the artifact instead of calling an external service. A
// separate delivery job picks these up.
type FileReviewRequester struct{}

type reviewRequest struct {
	ArtifactPath string                `json:"artifact_path"`
	Report       core.ValidationReport `json:"report"`
}

// RequestReview writes <artifact>.review.json beside the artifact.
func (FileReviewRequester) RequestReview(ctx context.Context, artifactPath string, report core.ValidationReport) error {
	payload, err := json.MarshalIndent(reviewRequest{
		ArtifactPath: artifactPath,
		Report:       report,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode review request: %w", err)
	}

	path := artifactPath + ".review.json"
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("failed to write review request: %w", err)
	}

	logger.Info("Review requested", "path", path, "findings", len(report.Findings))
	return nil
}
