package coverart

import (
	"context"
	"errors"
	"strings"

	"github.com/fpang/flipbook-booth/internal/capture"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Classify wraps a failed generation call as a GenerationError with a
// message the booth can show next to the "no cover" fallback.
func Classify(err error) *capture.Error {
	if err == nil {
		return nil
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return generationError("Cover generation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return &capture.Error{Kind: capture.Canceled, Message: "Cover generation canceled", Err: err}
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid") ||
		strings.Contains(errLower, "invalid api key") ||
		strings.Contains(errLower, "api_key_invalid") ||
		strings.Contains(errLower, "permission denied"):
		return generationError("Gemini API key is invalid or has been revoked", err)

	case strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "rate limit"):
		return generationError("Gemini quota exceeded or rate limited", err)

	case strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "network") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host"):
		return generationError("Network error - check your internet connection", err)

	default:
		return generationError("Cover generation failed", err)
	}
}

func classifyAPIError(err *genai.APIError) *capture.Error {
	switch err.Code {
	case 400:
		log.Error().Int("code", err.Code).Str("message", err.Message).Msg("Gemini rejected cover request")
		return generationError("Gemini rejected the cover request", err)
	case 401, 403:
		log.Error().Int("code", err.Code).Msg("Authentication failed - invalid API key")
		return generationError("Gemini API key is invalid, expired, or lacks permissions", err)
	case 429:
		log.Error().Int("code", err.Code).Msg("Rate limit exceeded")
		return generationError("Gemini rate limit exceeded - try again later", err)
	case 500, 502, 503, 504:
		log.Error().Int("code", err.Code).Msg("Server error during cover generation")
		return generationError("Gemini API server error - try again later", err)
	default:
		log.Error().Int("code", err.Code).Str("message", err.Message).Msg("Google API error")
		return generationError(err.Message, err)
	}
}

func generationError(msg string, err error) *capture.Error {
	return &capture.Error{Kind: capture.GenerationError, Message: msg, Err: err}
}
