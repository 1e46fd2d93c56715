package implementations

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"proxy-healer/config"
	"proxy-healer/healer/interfaces"
	"proxy-healer/models"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PersistenceManager implements the PersistenceManager interface
type PersistenceManager struct {
	stateFile string
	logger    *zap.Logger
	mu        sync.Mutex // serializes state file writes
}

// Ensure PersistenceManager implements PersistenceManager interface
var _ interfaces.PersistenceManager = (*PersistenceManager)(nil)

func NewPersistenceManager(stateFile string, logger *zap.Logger) interfaces.PersistenceManager {
	if stateFile == "" {
		stateFile = config.StateFilePath
	}
	return &PersistenceManager{
		stateFile: stateFile,
		logger:    logger,
	}
}

// StartCheckpointing saves state on the given cron schedule until ctx is cancelled
func (s *PersistenceManager) StartCheckpointing(ctx context.Context, wg *sync.WaitGroup, schedule string, getStateFunc func() *models.HealerState) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if state := getStateFunc(); state != nil {
			if err := s.SaveState(state); err != nil {
				s.logger.Error("Failed to checkpoint state", zap.Error(err))
			}
		}
	}); err != nil {
		return fmt.Errorf("invalid checkpoint schedule %q: %w", schedule, err)
	}

	c.Start()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		// Wait for a running checkpoint to finish
		<-c.Stop().Done()
	}()

	return nil
}

// SaveState writes the healer state to disk with gzip compression.
// The file is replaced atomically.
func (s *PersistenceManager) SaveState(state *models.HealerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmpFile := s.stateFile + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("failed to create compressed state file: %w", err)
	}

	gzipWriter := gzip.NewWriter(file)
	if _, err := gzipWriter.Write(data); err != nil {
		gzipWriter.Close()
		file.Close()
		return fmt.Errorf("failed to write compressed state: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush compressed state: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close compressed state file: %w", err)
	}

	if err := os.Rename(tmpFile, s.stateFile); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// RecoverState recovers healer state from disk
func (s *PersistenceManager) RecoverState() (*models.HealerState, error) {
	file, err := os.Open(s.stateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed state file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	data, err := io.ReadAll(gzipReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read compressed data: %w", err)
	}

	var state models.HealerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}
