package implementations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"proxy-healer/config"
	"proxy-healer/healer/interfaces"
	"proxy-healer/models"

	"go.uber.org/zap"
)

// maxStatusBodyBytes bounds how much of a status document is read
const maxStatusBodyBytes = 64 * 1024

// ProbeError is a classified probe failure
type ProbeError struct {
	Kind models.FailureKind
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// FailureKindOf returns the failure kind of a probe error.
// Unclassified errors count as connectivity failures.
func FailureKindOf(err error) models.FailureKind {
	var pe *ProbeError
	if errors.As(err, &pe) && pe.Kind.Valid() {
		return pe.Kind
	}
	return models.FailureConnectivity
}

// HTTPProberConfig holds the configuration for creating an HTTPProber
type HTTPProberConfig struct {
	Client           *http.Client
	StatusPath       string
	MinHealthyStatus int
	MaxHealthyStatus int
}

// HTTPProber implements the Prober interface against a node's status endpoint
type HTTPProber struct {
	client     *http.Client
	statusPath string
	minStatus  int
	maxStatus  int
	logger     *zap.Logger
}

// Ensure HTTPProber implements Prober interface
var _ interfaces.Prober = (*HTTPProber)(nil)

func NewHTTPProber(cfg HTTPProberConfig, logger *zap.Logger) interfaces.Prober {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	statusPath := cfg.StatusPath
	if statusPath == "" {
		statusPath = config.StatusPath
	}
	minStatus, maxStatus := cfg.MinHealthyStatus, cfg.MaxHealthyStatus
	if minStatus == 0 && maxStatus == 0 {
		minStatus, maxStatus = config.MinHealthyStatus, config.MaxHealthyStatus
	}

	return &HTTPProber{
		client:     client,
		statusPath: statusPath,
		minStatus:  minStatus,
		maxStatus:  maxStatus,
		logger:     logger,
	}
}

// nodeStatus is the subset of a grid node status document the prober reads
type nodeStatus struct {
	Value *struct {
		Ready   *bool  `json:"ready"`
		Message string `json:"message"`
	} `json:"value"`
}

// Probe checks that the proxy answers its status endpoint and reports ready
func (p *HTTPProber) Probe(ctx context.Context, proxy models.Proxy) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxy.URL+p.statusPath, nil)
	if err != nil {
		return &ProbeError{Kind: models.FailureProtocol, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return &ProbeError{Kind: models.FailureOverload, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode < p.minStatus || resp.StatusCode > p.maxStatus {
		return &ProbeError{Kind: models.FailureProtocol, Err: fmt.Errorf("unhealthy status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBodyBytes))
	if err != nil {
		return classifyTransportError(err)
	}

	// Non-JSON bodies are fine, the status code already passed
	var doc nodeStatus
	if err := json.Unmarshal(body, &doc); err == nil && doc.Value != nil && doc.Value.Ready != nil && !*doc.Value.Ready {
		return &ProbeError{Kind: models.FailureOverload, Err: fmt.Errorf("node not ready: %s", doc.Value.Message)}
	}

	p.logger.Debug("Probe succeeded",
		zap.String("proxy", proxy.ID),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProbeError{Kind: models.FailureTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProbeError{Kind: models.FailureTimeout, Err: err}
	}
	return &ProbeError{Kind: models.FailureConnectivity, Err: err}
}
