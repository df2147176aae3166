package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/yegors/co-rwsl/pkg/logger"
)

// Source types
const (
	SourceLocal    = "local"
	SourceExternal = "external"
	SourceFile     = "file"
	SourceSim      = "sim"
)

// Client is responsible for fetching ADS-B data from the source
type Client struct {
	httpClient *http.Client
	sourceType string
	sourceURL  string
	filePath   string
	logger     *logger.Logger
}

// NewClient creates a new ADS-B client. sourceURL is the receiver's aircraft.json for
// "local" and the aggregator endpoint for "external".
func NewClient(sourceType, sourceURL, filePath string, timeout time.Duration, loggerObj *logger.Logger) *Client {
	return &Client{
		sourceType: sourceType,
		sourceURL:  sourceURL,
		filePath:   filePath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: loggerObj.Named("adsb-cli"),
	}
}

// FetchData fetches ADS-B data from the configured source
func (c *Client) FetchData(ctx context.Context) (*RawAircraftData, error) {
	switch c.sourceType {
	case SourceLocal:
		return c.fetchHTTP(ctx, func(body []byte) (*RawAircraftData, error) {
			return decode(body, SourceLocal)
		})
	case SourceExternal:
		return c.fetchHTTP(ctx, decodeExternal)
	case SourceFile:
		return c.readFileData()
	default:
		return nil, fmt.Errorf("unknown source type: %s", c.sourceType)
	}
}

// fetchHTTP fetches one document from the configured URL
func (c *Client) fetchHTTP(ctx context.Context, decodeBody func([]byte) (*RawAircraftData, error)) (*RawAircraftData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching ADS-B data",
		logger.String("source", c.sourceType),
		logger.String("url", c.sourceURL),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	data, err := decodeBody(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Successfully fetched ADS-B data",
		logger.Int("aircraft_count", len(data.Aircraft)),
		logger.Int("message_count", data.Messages),
	)
	return data, nil
}

// readFileData reads an aircraft.json snapshot from disk
func (c *Client) readFileData() (*RawAircraftData, error) {
	body, err := os.ReadFile(c.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ADS-B file: %w", err)
	}
	return decode(body, SourceFile)
}

func decode(body []byte, source string) (*RawAircraftData, error) {
	var data RawAircraftData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	for i := range data.Aircraft {
		data.Aircraft[i].SourceType = source
	}
	return &data, nil
}
