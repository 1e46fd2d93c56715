package implementations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"proxy-healer/config"
	"proxy-healer/healer/interfaces"
	"proxy-healer/models"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// RestartHandlerConfig holds the configuration for creating a RestartHandler
type RestartHandlerConfig struct {
	Client         *http.Client
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	DeadLetterFile string
}

// RestartHandler implements the RestartHandler interface
type RestartHandler struct {
	client         *http.Client
	maxRetries     int
	initialDelay   time.Duration
	maxDelay       time.Duration
	deadLetterFile string
	logger         *zap.Logger
	fileMu         sync.Mutex // serializes dead letter file access
}

// Ensure RestartHandler implements RestartHandler interface
var _ interfaces.RestartHandler = (*RestartHandler)(nil)

func NewRestartHandler(cfg RestartHandlerConfig, logger *zap.Logger) interfaces.RestartHandler {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = config.BaseRestartDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.DeadLetterFile == "" {
		cfg.DeadLetterFile = config.DeadLetterFile
	}

	return &RestartHandler{
		client:         client,
		maxRetries:     cfg.MaxRetries,
		initialDelay:   cfg.InitialDelay,
		maxDelay:       cfg.MaxDelay,
		deadLetterFile: cfg.DeadLetterFile,
		logger:         logger,
	}
}

// Restart asks the remote to restart, retrying with exponential backoff.
// Restarts that run out of retries are written to the dead letter file.
func (r *RestartHandler) Restart(ctx context.Context, proxy models.Proxy) error {
	if proxy.RestartURL == "" {
		return fmt.Errorf("%w: %s", models.ErrRestartUnsupported, proxy.ID)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.initialDelay
	expBackoff.MaxInterval = r.maxDelay
	expBackoff.MaxElapsedTime = 0 // bounded by retries and ctx

	attempts := 0
	operation := func() error {
		attempts++
		return r.requestRestart(ctx, proxy)
	}
	notify := func(err error, next time.Duration) {
		r.logger.Warn("Restart attempt failed, retrying",
			zap.String("proxy", proxy.ID),
			zap.Int("attempt", attempts),
			zap.Duration("next_delay", next),
			zap.Error(err),
		)
	}

	strategy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(r.maxRetries)), ctx)
	if err := backoff.RetryNotify(operation, strategy, notify); err != nil {
		if ctx.Err() != nil {
			// Cancelled by shutdown, not a remote failure
			return fmt.Errorf("restart of %s interrupted: %w", proxy.ID, ctx.Err())
		}

		r.logger.Error("Restart failed permanently after max retries",
			zap.String("proxy", proxy.ID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		r.saveToDeadLetterFile(proxy, err.Error(), attempts)
		return fmt.Errorf("restart of %s failed after %d attempts: %w", proxy.ID, attempts, err)
	}

	r.logger.Info("Proxy restarted",
		zap.String("proxy", proxy.ID),
		zap.Int("attempts", attempts),
	)
	return nil
}

// requestRestart performs one restart request
func (r *RestartHandler) requestRestart(ctx context.Context, proxy models.Proxy) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, proxy.RestartURL, nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("restart endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// saveToDeadLetterFile saves permanently failed restarts with rotation
func (r *RestartHandler) saveToDeadLetterFile(proxy models.Proxy, finalError string, attempts int) {
	r.fileMu.Lock()
	defer r.fileMu.Unlock()

	entries, err := r.readDeadLetterFile()
	if err != nil {
		r.logger.Error("Failed to parse existing dead letter file", zap.Error(err))
		entries = nil
	}

	// Keep only the most recent entries
	if len(entries) >= config.MaxDeadLetterEntries {
		entries = entries[len(entries)-config.MaxDeadLetterEntries/2:]
		r.logger.Info("Rotated dead letter file", zap.Int("new_size", len(entries)))
	}

	entries = append(entries, models.FailedRestart{
		Proxy:      proxy,
		FinalError: finalError,
		Attempts:   attempts,
		FailedAt:   time.Now(),
	})

	data, err := json.Marshal(entries)
	if err != nil {
		r.logger.Error("Failed to encode dead letter entries", zap.Error(err))
		return
	}
	if err := os.WriteFile(r.deadLetterFile, data, 0644); err != nil {
		r.logger.Error("Failed to write dead letter file", zap.Error(err))
		return
	}

	r.logger.Info("Restart saved to dead letter file",
		zap.String("proxy", proxy.ID),
		zap.String("file", r.deadLetterFile),
	)
}

// GetFailedRestarts returns the dead letter entries, oldest first
func (r *RestartHandler) GetFailedRestarts() ([]models.FailedRestart, error) {
	r.fileMu.Lock()
	defer r.fileMu.Unlock()

	return r.readDeadLetterFile()
}

func (r *RestartHandler) readDeadLetterFile() ([]models.FailedRestart, error) {
	data, err := os.ReadFile(r.deadLetterFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.FailedRestart{}, nil
		}
		return nil, fmt.Errorf("failed to read dead letter file: %w", err)
	}

	var entries []models.FailedRestart
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse dead letter file: %w", err)
	}
	return entries, nil
}
