package installer

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"ps1dev/internal/logger"
)

// Download fetches url fully into memory. There is no streaming to disk, no resume and
// no size limit; archives are small enough that the whole buffer is handed to the extractor.
func Download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}

	logger.Debug("[DEBUG] GET %s\n", url)
	resp, err := client.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	// Ensure the response body stream is closed when the function returns
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("[WARN] Failed to close HTTP response body: %v\n", cerr)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &DownloadError{URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	logger.Debug("[DEBUG] Downloaded %d bytes from %s\n", len(data), url)
	return data, nil
}
