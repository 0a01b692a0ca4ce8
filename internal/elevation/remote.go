package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"trailrouter/internal/geo"
	"trailrouter/internal/routeerr"
)

// MaxBatchSize is the largest number of points sent to the remote
// elevation service in a single request, per §4.6.
const MaxBatchSize = 50

// RemoteClient calls a remote elevation service as the fallback path
// when no local DEM is configured, or when a point falls outside the
// DEM's coverage. Requests for the same batch key are coalesced with
// singleflight the same way the GLO-90 importer coalesces concurrent
// tile loads.
type RemoteClient struct {
	baseURL string
	http    *http.Client
	group   singleflight.Group
}

// NewRemoteClient returns a RemoteClient targeting baseURL. httpClient
// may be nil, in which case http.DefaultClient is used.
func NewRemoteClient(baseURL string, httpClient *http.Client) *RemoteClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &RemoteClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type remoteRequest struct {
	Locations []remoteLocation `json:"locations"`
}

type remoteLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type remoteResponse struct {
	Results []struct {
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

// Fetch resolves elevations for points, batching in groups of at most
// MaxBatchSize and retrying each batch with exponential backoff on
// transient failures. A batch that exhausts its retries degrades to an
// all-None result for that batch rather than failing the whole request,
// per §7's transient-error policy.
func (c *RemoteClient) Fetch(ctx context.Context, points []geo.Coordinate) []*float64 {
	results := make([]*float64, len(points))

	for start := 0; start < len(points); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(points) {
			end = len(points)
		}

		batch := points[start:end]
		key := batchKey(batch)

		elevations, err, _ := c.group.Do(key, func() (any, error) {
			return c.fetchBatchWithRetry(ctx, batch)
		})
		if err != nil {
			continue // leave this batch's results as nil (None)
		}

		copy(results[start:end], elevations.([]*float64))
	}

	return results
}

func (c *RemoteClient) fetchBatchWithRetry(ctx context.Context, batch []geo.Coordinate) ([]*float64, error) {
	operation := func() ([]*float64, error) {
		batchCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		out, err := c.fetchBatch(batchCtx, batch)
		if err != nil && !routeerr.Is(err, routeerr.KindTransient) {
			return nil, backoff.Permanent(err)
		}

		return out, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithMaxTries(3),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
}

func (c *RemoteClient) fetchBatch(ctx context.Context, batch []geo.Coordinate) ([]*float64, error) {
	req := remoteRequest{Locations: make([]remoteLocation, len(batch))}
	for i, p := range batch {
		req.Locations[i] = remoteLocation{Latitude: p.Lat, Longitude: p.Lon}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, routeerr.Internal(err, "marshal elevation request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/lookup", strings.NewReader(string(body)))
	if err != nil {
		return nil, routeerr.Internal(err, "build elevation request")
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, routeerr.Transient(err, "call remote elevation service")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, routeerr.Transient(nil, fmt.Sprintf("remote elevation service returned %d", resp.StatusCode))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, routeerr.Unavailable(nil, fmt.Sprintf("remote elevation service returned %d", resp.StatusCode))
	}

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, routeerr.Transient(err, "decode elevation response")
	}

	if len(parsed.Results) != len(batch) {
		return nil, routeerr.Internal(nil, "remote elevation service returned mismatched result count")
	}

	out := make([]*float64, len(batch))

	for i, r := range parsed.Results {
		e := r.Elevation
		out[i] = &e
	}

	return out, nil
}

func batchKey(batch []geo.Coordinate) string {
	var sb strings.Builder

	for _, p := range batch {
		fmt.Fprintf(&sb, "%.6f,%.6f;", p.Lat, p.Lon)
	}

	return sb.String()
}

// requestTimeout bounds a single remote batch call, matching the
// per-batch timeout §5 requires regardless of the caller's outer
// request deadline.
const requestTimeout = 5 * time.Second
