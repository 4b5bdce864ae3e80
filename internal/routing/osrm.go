package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/trip-coordinator/internal/models"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

// Road queries OSRM /route between points. OSRM has no live traffic model,
// so the traffic-adjusted duration equals the plain one.
func (o *OSRMClient) Road(ctx context.Context, from, to models.Coord) (Metrics, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false",
		o.Endpoint, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metrics{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return Metrics{}, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Metrics{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Metrics{}, fmt.Errorf("osrm no route: %v", out.Code)
	}
	r := out.Routes[0]
	dur := time.Duration(r.Duration * float64(time.Second))
	return Metrics{
		DistanceKm:      r.Distance / 1000,
		Duration:        dur,
		TrafficDuration: dur,
		TrafficFactor:   1,
	}, nil
}
