package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/patrickwarner/openslot/internal/models"
)

// ReadForecast decodes a forecast exported by the forecasting service:
// {"<screen id>": {"<unix hour>": ots, ...}, ...}.
func ReadForecast(r io.Reader) (models.Forecast, error) {
	var f models.Forecast
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}
	return f, nil
}

// WriteForecast encodes a forecast in the format ReadForecast accepts.
func WriteForecast(w io.Writer, f models.Forecast) error {
	return json.NewEncoder(w).Encode(f)
}

// ReadRequests decodes either a single request object or an array of
// requests into a batch.
func ReadRequests(r io.Reader) ([]models.AdvertisementRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read requests: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("requests: empty input")
	}
	if data[0] == '[' {
		var batch []models.AdvertisementRequest
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("decode requests: %w", err)
		}
		return batch, nil
	}
	var single models.AdvertisementRequest
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return []models.AdvertisementRequest{single}, nil
}
