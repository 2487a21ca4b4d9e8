package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
)

// statusCheck reports whether a response status code is a success for the request.
type statusCheck func(code int) bool

func isOK(code int) bool { return code == http.StatusOK }

func isSuccess(code int) bool { return code >= 200 && code < 300 }

// endpoint returns the absolute URL of the API path made of elems, with the optional query.
func (c Client) endpoint(query url.Values, elems ...string) string {
	u := *c.baseURL
	u.Path = path.Join(append([]string{"/", u.Path}, elems...)...)
	u.RawQuery = ""
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// send issues an authenticated request with an optional JSON body and returns the response body.
// A status code rejected by ok results in an *HTTPError.
func (c Client) send(ctx context.Context, method, u string, body any, ok statusCheck) ([]byte, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %v", err)
		}
		c.log.Debug("Sending data to server", "method", method, "url", u, "data", string(data))
		r = bytes.NewReader(data)
	} else {
		c.log.Debug("Sending request to server", "method", method, "url", u)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	if !ok(resp.StatusCode) {
		return nil, &HTTPError{Method: method, URL: u, StatusCode: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}

// setHeaders sets the content negotiation and authorization headers every cloud request carries.
func (c Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.SetBasicAuth(c.creds.AppID, c.creds.AppToken)
}

// decodeJSON unmarshals data into v, keeping numbers in their textual form.
func decodeJSON(data []byte, v any) error {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	return d.Decode(v)
}
