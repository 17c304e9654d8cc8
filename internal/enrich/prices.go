package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPPriceService implements PriceService against a simple REST
// endpoint: GET <base>?name=..&set=..&number=.. returning a PriceData
// JSON body, 404 for unknown cards.
type HTTPPriceService struct {
	baseURL string
	client  *http.Client
}

func NewHTTPPriceService(baseURL string) *HTTPPriceService {
	return &HTTPPriceService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPPriceService) Lookup(ctx context.Context, name, set, number string) (*PriceData, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("set", set)
	q.Set("number", number)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("price lookup: status code %d", resp.StatusCode)
	}

	var price PriceData
	if err := json.NewDecoder(resp.Body).Decode(&price); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}
	return &price, nil
}
