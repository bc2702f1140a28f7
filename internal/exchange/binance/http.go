package binance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/httpx"
	"github.com/quantfold/basisarb/internal/model"
)

// getJSON maps transport failures to TransportError and non-2xx statuses to
// VendorError with the truncated body.
func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	err := c.http.GetJSON(ctx, url, v)
	if err == nil {
		return nil
	}
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return exchange.Vendorf(model.VenueBinance, "API error: status %d, response: %s",
			se.Status, exchange.Truncate(se.Body))
	}
	return exchange.Transport("binance: GET "+url, err)
}

// doSigned sends an authenticated request. The signed query rides in the URL;
// the API key goes in the header. The decoded body lands in v when non-nil.
func (c *Client) doSigned(ctx context.Context, method, baseURL, endpoint string, q *query, v any) error {
	if err := c.requireCredentials(); err != nil {
		return err
	}
	url := baseURL + endpoint + "?" + c.signedQuery(q)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return exchange.Transport("binance: build request", err)
	}
	req.Header.Set(headerAPIKey, c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return exchange.Transport("binance: "+method+" "+endpoint, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return exchange.Transport("binance: read body", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return exchange.Vendorf(model.VenueBinance, "%s API error: status %d, response: %s",
			endpoint, res.StatusCode, exchange.Truncate(string(body)))
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return exchange.Vendorf(model.VenueBinance, "failed to parse %s response: %v", endpoint, err)
	}
	return nil
}
