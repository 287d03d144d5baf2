package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/pkg/models"
)

// HTTPGeocoder calls an external reverse-geocoding HTTP service and always
// degrades to a "lat,lon" string instead of erroring.
type HTTPGeocoder struct {
	BaseURL string
	Client  *http.Client
	Logger  *logging.Logger
	Timeout time.Duration
}

func (g *HTTPGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) string {
	fallback := fmt.Sprintf("%.6f,%.6f", lat, lon)
	if g.BaseURL == "" {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()

	url := fmt.Sprintf("%s?lat=%f&lon=%f", g.BaseURL, lat, lon)
	var address string
	start := time.Now()

	err := retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := g.client().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("geocoder: server error %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("geocoder: status %d", resp.StatusCode))
		}
		var body struct {
			Address string `json:"address"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(err)
		}
		address = body.Address
		return nil
	})

	g.Logger.LogCollaboratorCall("geocoder", time.Since(start), err)
	if err != nil || address == "" {
		return fallback
	}
	return address
}

func (g *HTTPGeocoder) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

func (g *HTTPGeocoder) timeout() time.Duration {
	if g.Timeout > 0 {
		return g.Timeout
	}
	return 3 * time.Second
}

// HTTPRoadSnapper calls an external road-snapping HTTP service. Returns nil
// on any failure rather than propagating an error — snapped geometry is
// optional enrichment on top of the raw waypoints.
type HTTPRoadSnapper struct {
	BaseURL string
	Client  *http.Client
	Logger  *logging.Logger
	Timeout time.Duration
}

func (s *HTTPRoadSnapper) Snap(ctx context.Context, waypoints []models.Waypoint) []models.Waypoint {
	if s.BaseURL == "" || len(waypoints) < 2 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	payload, err := json.Marshal(struct {
		Waypoints []models.Waypoint `json:"waypoints"`
	}{Waypoints: waypoints})
	if err != nil {
		return nil
	}

	var snapped []models.Waypoint
	start := time.Now()

	callErr := retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("road-snapper: server error %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("road-snapper: status %d", resp.StatusCode))
		}

		var body struct {
			Snapped []models.Waypoint `json:"snapped"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(err)
		}
		snapped = body.Snapped
		return nil
	})

	s.Logger.LogCollaboratorCall("road-snapper", time.Since(start), callErr)
	if callErr != nil {
		return nil
	}
	return snapped
}

func (s *HTTPRoadSnapper) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *HTTPRoadSnapper) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 3 * time.Second
}

// HTTPUpstreamProvider calls the vehicle telemetry vendor's pull API.
type HTTPUpstreamProvider struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

func (p *HTTPUpstreamProvider) FetchVehicleData(ctx context.Context, vin string) (VehicleSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	url := fmt.Sprintf("%s/vehicles/%s", p.BaseURL, vin)
	var snapshot VehicleSnapshot

	err := retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.client().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("upstream: server error %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("upstream: status %d", resp.StatusCode))
		}

		var body struct {
			DriveState   string   `json:"driveState"`
			VehicleState string   `json:"vehicleState"`
			ChargeState  *float64 `json:"chargeState"`
			OdometerKm   *float64 `json:"odometerKm"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(err)
		}
		snapshot = VehicleSnapshot{
			DriveState:   models.DriveState(body.DriveState),
			VehicleState: models.VehicleState(body.VehicleState),
			ChargeLevel:  body.ChargeState,
			OdometerKm:   body.OdometerKm,
		}
		return nil
	})

	return snapshot, err
}

func (p *HTTPUpstreamProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *HTTPUpstreamProvider) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 3 * time.Second
}

// retry wraps op in a short exponential backoff, bounded so a slow
// collaborator never stalls the dispatcher for long.
func retry(ctx context.Context, op backoff.Operation) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 1 * time.Second
	bo.MaxElapsedTime = 2 * time.Second
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
