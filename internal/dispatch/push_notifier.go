package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/trip-coordinator/internal/models"
)

// PushNotifier posts offers to a vehicle-app push backend, trying a live
// websocket session first when one exists.
type PushNotifier struct {
	Endpoint string
	Key      string
	Client   *http.Client
	WS       *WSRegistry
}

func NewPushNotifier(endpoint, key string, ws *WSRegistry) *PushNotifier {
	return &PushNotifier{
		Endpoint: endpoint,
		Key:      key,
		Client:   &http.Client{Timeout: 3 * time.Second},
		WS:       ws,
	}
}

func (p *PushNotifier) Offer(ctx context.Context, vehicleID string, offer models.Offer) error {
	if p.WS != nil {
		if err := p.WS.Offer(ctx, vehicleID, offer); err == nil {
			return nil
		}
	}
	body, err := json.Marshal(map[string]interface{}{
		"vehicle_id": vehicleID,
		"offer":      offer,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push backend status %d", resp.StatusCode)
	}
	return nil
}
