package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/GodsB1025/tradewatch"
)

// httpDetector calls the external update-detection service (the LLM
// gateway) and classifies transport failures into the engine's
// detector error kinds.
type httpDetector struct {
	baseURL string
	client  *http.Client
}

func newDetector() tradewatch.UpdateDetector {
	base := os.Getenv("DETECTOR_URL")
	if base == "" {
		base = "http://localhost:9000"
	}
	return &httpDetector{
		baseURL: base,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type detectorResponse struct {
	Status       string              `json:"status"`
	Summary      string              `json:"summary"`
	Sources      []tradewatch.Source `json:"sources"`
	ErrorMessage string              `json:"error_message"`
}

func (d *httpDetector) Detect(ctx context.Context, targetValue string) (tradewatch.Detection, error) {
	endpoint := fmt.Sprintf("%s/detect?target=%s", d.baseURL, url.QueryEscape(targetValue))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return tradewatch.Detection{}, fmt.Errorf("%w: %v", tradewatch.ErrDetectorInternal, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		var netErr interface{ Timeout() bool }
		switch {
		case errors.Is(err, context.Canceled):
			return tradewatch.Detection{}, err
		case errors.Is(err, context.DeadlineExceeded),
			errors.As(err, &netErr) && netErr.Timeout():
			return tradewatch.Detection{}, fmt.Errorf("%w: %v", tradewatch.ErrDetectorTimeout, err)
		default:
			return tradewatch.Detection{}, fmt.Errorf("%w: %v", tradewatch.ErrDetectorInternal, err)
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return tradewatch.Detection{}, fmt.Errorf("%w: upstream returned 429", tradewatch.ErrDetectorRateLimited)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return tradewatch.Detection{}, fmt.Errorf("%w: upstream returned 504", tradewatch.ErrDetectorTimeout)
	case resp.StatusCode != http.StatusOK:
		return tradewatch.Detection{}, fmt.Errorf("%w: upstream returned %d", tradewatch.ErrDetectorInternal, resp.StatusCode)
	}

	var body detectorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return tradewatch.Detection{}, fmt.Errorf("%w: %v", tradewatch.ErrDetectorMalformed, err)
	}

	det := tradewatch.Detection{
		Summary:      body.Summary,
		Sources:      body.Sources,
		ErrorMessage: body.ErrorMessage,
	}
	switch body.Status {
	case string(tradewatch.StatusUpdateFound):
		if body.Summary == "" || len(body.Sources) == 0 {
			return tradewatch.Detection{}, fmt.Errorf("%w: update without summary or sources", tradewatch.ErrDetectorMalformed)
		}
		det.Status = tradewatch.StatusUpdateFound
	case string(tradewatch.StatusNoUpdate):
		det.Status = tradewatch.StatusNoUpdate
	case string(tradewatch.StatusError):
		det.Status = tradewatch.StatusError
	default:
		return tradewatch.Detection{}, fmt.Errorf("%w: unknown status %q", tradewatch.ErrDetectorMalformed, body.Status)
	}

	return det, nil
}
