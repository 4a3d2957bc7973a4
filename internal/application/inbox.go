package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/ports/input"
	"github.com/jobrunner/envextract/internal/ports/output"
)

// ErrRateLimited is returned when the scan API rate limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// scanCooldown is the minimum time between two triggered scans.
const scanCooldown = 30 * time.Second

// RequestDecoder decodes a request document into one or more requests.
type RequestDecoder func(data []byte) ([]domain.ExtractionRequest, error)

// ScanResult contains the result of an inbox scan.
type ScanResult struct {
	Processed       int       `json:"processed"`
	Failed          int       `json:"failed"`
	Tasks           int       `json:"tasks"`
	ScannedAt       time.Time `json:"scanned_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}

// Receipt is written next to every processed request document.
type Receipt struct {
	Source      string                    `json:"source"`
	Results     []domain.ExtractionResult `json:"results"`
	Errors      []string                  `json:"errors,omitempty"`
	ProcessedAt time.Time                 `json:"processed_at"`
}

// InboxConfig configures the inbox.
type InboxConfig struct {
	Prefix        string        // where request documents are dropped
	ReceiptPrefix string        // where receipts are written
	Interval      time.Duration // scan period
}

// InboxService periodically submits request documents dropped into object
// storage. A document is processed once; its receipt marks it done.
type InboxService struct {
	storage   output.ObjectStorage
	extractor input.Extractor
	decode    RequestDecoder
	metrics   output.MetricsCollector
	logger    *slog.Logger
	cfg       InboxConfig

	// Lifecycle management
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Rate limiting for API triggers
	lastAPIScan time.Time
	apiMutex    sync.Mutex

	// Prevents concurrent scans
	scanOpMutex sync.Mutex

	nextScan time.Time
	scanMu   sync.RWMutex
}

// NewInboxService creates a new inbox service.
func NewInboxService(
	storage output.ObjectStorage,
	extractor input.Extractor,
	decode RequestDecoder,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg InboxConfig,
) *InboxService {
	if cfg.Prefix == "" {
		cfg.Prefix = "requests"
	}
	if cfg.ReceiptPrefix == "" {
		cfg.ReceiptPrefix = "receipts"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	return &InboxService{
		storage:   storage,
		extractor: extractor,
		decode:    decode,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		// allow an immediate first API call
		lastAPIScan: time.Now().Add(-scanCooldown - time.Second),
	}
}

// Start begins the periodic scan.
func (s *InboxService) Start(ctx context.Context) {
	s.logger.Info("starting inbox", "prefix", s.cfg.Prefix, "interval", s.cfg.Interval)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *InboxService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.setNextScan(time.Now().Add(s.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("inbox stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("inbox stopped")
			return
		case <-ticker.C:
			if _, err := s.scan(ctx); err != nil {
				s.logger.Error("inbox scan failed", "error", err)
			}
			s.setNextScan(time.Now().Add(s.cfg.Interval))
		}
	}
}

// Stop gracefully stops the inbox.
func (s *InboxService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping inbox")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// TriggerScan scans the inbox now. Returns ErrRateLimited when called again
// within the cooldown.
func (s *InboxService) TriggerScan(ctx context.Context) (ScanResult, error) {
	s.apiMutex.Lock()
	defer s.apiMutex.Unlock()

	if time.Since(s.lastAPIScan) < scanCooldown {
		return ScanResult{}, ErrRateLimited
	}
	s.lastAPIScan = time.Now()

	return s.scan(ctx)
}

// Interval returns the scan interval.
func (s *InboxService) Interval() time.Duration {
	return s.cfg.Interval
}

func (s *InboxService) scan(ctx context.Context) (ScanResult, error) {
	s.scanOpMutex.Lock()
	defer s.scanOpMutex.Unlock()

	objects, err := s.storage.List(ctx, s.cfg.Prefix)
	s.metrics.IncStorageOperations("list", err == nil)
	if err != nil {
		return ScanResult{}, &domain.StorageError{Operation: "list", Key: s.cfg.Prefix, Err: err}
	}

	result := ScanResult{ScannedAt: time.Now().UTC(), NextScheduledAt: s.getNextScan()}
	for _, obj := range objects {
		if !isRequestDocument(obj.Key) {
			continue
		}
		receiptKey := s.receiptKey(obj.Key)
		done, err := s.storage.Exists(ctx, receiptKey)
		if err != nil {
			return result, &domain.StorageError{Operation: "exists", Key: receiptKey, Err: err}
		}
		if done {
			continue
		}

		receipt := s.process(ctx, obj.Key)
		result.Processed++
		if len(receipt.Errors) > 0 {
			result.Failed++
		}
		for _, r := range receipt.Results {
			result.Tasks += len(r.Tasks)
		}
		s.writeReceipt(ctx, receiptKey, receipt)
	}

	if result.Processed > 0 {
		s.logger.Info("inbox scan completed",
			"processed", result.Processed,
			"failed", result.Failed,
			"tasks", result.Tasks,
		)
	}
	return result, nil
}

// process submits every request of one document. A failing request does
// not stop the others.
func (s *InboxService) process(ctx context.Context, key string) Receipt {
	receipt := Receipt{Source: key, Results: []domain.ExtractionResult{}, ProcessedAt: time.Now().UTC()}

	data, err := s.read(ctx, key)
	if err != nil {
		receipt.Errors = append(receipt.Errors, err.Error())
		return receipt
	}
	requests, err := s.decode(data)
	if err != nil {
		receipt.Errors = append(receipt.Errors, fmt.Sprintf("decoding %s: %v", key, err))
		return receipt
	}

	for i, req := range requests {
		res, err := s.extractor.Extract(ctx, req)
		if res != nil {
			receipt.Results = append(receipt.Results, *res)
		}
		if err != nil {
			s.logger.Warn("inbox request failed", "source", key, "request", i, "error", err)
			receipt.Errors = append(receipt.Errors, fmt.Sprintf("request %d: %v", i, err))
		}
	}
	return receipt
}

func (s *InboxService) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.storage.GetReader(ctx, key)
	if err != nil {
		s.metrics.IncStorageOperations("read", false)
		return nil, &domain.StorageError{Operation: "read", Key: key, Err: err}
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	s.metrics.IncStorageOperations("read", err == nil)
	if err != nil {
		return nil, &domain.StorageError{Operation: "read", Key: key, Err: err}
	}
	return data, nil
}

func (s *InboxService) writeReceipt(ctx context.Context, key string, receipt Receipt) {
	data, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode receipt", "key", key, "error", err)
		return
	}
	err = s.storage.Put(ctx, key, data, "application/json")
	s.metrics.IncStorageOperations("put", err == nil)
	if err != nil {
		s.logger.Error("failed to write receipt", "key", key, "error", err)
	}
}

// receiptKey mirrors the document path below the inbox prefix, so documents
// of the same name in different folders keep separate receipts.
func (s *InboxService) receiptKey(key string) string {
	rel := strings.TrimLeft(strings.TrimPrefix(key, s.cfg.Prefix), "/")
	return path.Join(s.cfg.ReceiptPrefix, rel+".json")
}

func (s *InboxService) setNextScan(t time.Time) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	s.nextScan = t
}

func (s *InboxService) getNextScan() time.Time {
	s.scanMu.RLock()
	defer s.scanMu.RUnlock()
	return s.nextScan
}

func isRequestDocument(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
