package coverart

import (
	"context"
	"time"

	"github.com/fpang/flipbook-booth/internal/capture"
	"github.com/fpang/flipbook-booth/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// checkModel is the cheap text model used to verify the API key.
const checkModel = "gemini-3-flash-preview"

// Check verifies the API key with a minimal text request. A disabled
// generator returns ErrDisabled.
func (g *Generator) Check(ctx context.Context) error {
	if !g.Enabled() {
		return ErrDisabled
	}
	log.Debug().Msg("Validating API key with Gemini API")

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, checkModel, genai.Text("hi"), nil)
	elapsed := time.Since(start)

	result := "success"
	var checkErr *capture.Error
	switch {
	case err != nil:
		checkErr = Classify(err)
		result = checkErr.Kind.String()
	case resp == nil || len(resp.Candidates) == 0:
		checkErr = generationError("Gemini returned an empty response", nil)
		result = "empty_response"
	}

	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Metric("ApiKeyValidationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("ApiKeyValidationResult").
		Flush()

	if checkErr != nil {
		return checkErr
	}
	log.Info().Dur("duration", elapsed).Msg("API key validated successfully")
	return nil
}
