// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/logger/conf"
	"github.com/wildsight/antler/pkg/sql"
)

type Config struct {
	HttpPort   int                `json:"httpPort" yaml:"httpPort"`
	Log        LogSettings        `json:"log" yaml:"log"`
	Database   sql.DatabaseConfig `json:"database" yaml:"database"`
	Queue      QueueSettings      `json:"queue" yaml:"queue"`
	Pipeline   PipelineSettings   `json:"pipeline" yaml:"pipeline"`
	Inference  InferenceSettings  `json:"inference" yaml:"inference"`
	Storage    StorageSettings    `json:"storage" yaml:"storage"`
	Trace      TraceSettings      `json:"trace" yaml:"trace"`
	Backfill   BackfillSettings   `json:"backfill" yaml:"backfill"`
	Middleware MiddlewareConfig   `json:"middleware" yaml:"middleware"`
}

func (c *Config) GetHttpPort() int {
	if c.HttpPort == 0 {
		return 8080
	}
	return c.HttpPort
}

type LogSettings struct {
	Level     string `json:"level" yaml:"level"`
	Formatter string `json:"formatter" yaml:"formatter"`
	FileName  string `json:"fileName" yaml:"fileName"`
}

func (l LogSettings) ToLogConfig() *conf.LogConfig {
	cfg := conf.DefaultConfig()
	cfg.Level = conf.ParseLevel(l.Level)
	if l.Formatter != "" {
		cfg.Formatter = conf.Formatter(l.Formatter)
	}
	cfg.FileName = l.FileName
	return cfg
}

// QueueSettings tunes the DB-backed dispatch queue.
type QueueSettings struct {
	VisibilityTimeoutSeconds int `json:"visibility_timeout_seconds" yaml:"visibility_timeout_seconds"`
	PollIntervalMs           int `json:"poll_interval_ms" yaml:"poll_interval_ms"`
	SweepIntervalSeconds     int `json:"sweep_interval_seconds" yaml:"sweep_interval_seconds"`
	RetryBackoffMs           int `json:"retry_backoff_ms" yaml:"retry_backoff_ms"`
	RetentionHours           int `json:"retention_hours" yaml:"retention_hours"`
	CleanupIntervalMinutes   int `json:"cleanup_interval_minutes" yaml:"cleanup_interval_minutes"`
}

func (q QueueSettings) GetVisibilityTimeout() time.Duration {
	if q.VisibilityTimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(q.VisibilityTimeoutSeconds) * time.Second
}

func (q QueueSettings) GetPollInterval() time.Duration {
	if q.PollIntervalMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(q.PollIntervalMs) * time.Millisecond
}

func (q QueueSettings) GetSweepInterval() time.Duration {
	if q.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(q.SweepIntervalSeconds) * time.Second
}

// GetRetryBackoffBase is the first retry delay; each further retry doubles
// it up to the visibility timeout.
func (q QueueSettings) GetRetryBackoffBase() time.Duration {
	if q.RetryBackoffMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(q.RetryBackoffMs) * time.Millisecond
}

func (q QueueSettings) GetRetention() time.Duration {
	if q.RetentionHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(q.RetentionHours) * time.Hour
}

func (q QueueSettings) GetCleanupInterval() time.Duration {
	if q.CleanupIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(q.CleanupIntervalMinutes) * time.Minute
}

// PipelineSettings carries every operator-tunable pipeline parameter.
type PipelineSettings struct {
	DetectorConfidence *float64  `json:"detector_confidence" yaml:"detector_confidence"`
	IouDedupThreshold  *float64  `json:"iou_dedup_threshold" yaml:"iou_dedup_threshold"`
	BurstWindowSeconds int       `json:"burst_window_seconds" yaml:"burst_window_seconds"`
	ReidThreshold      *float64  `json:"reid_threshold" yaml:"reid_threshold"`
	EnsembleWeights    []float64 `json:"ensemble_weights" yaml:"ensemble_weights"`
	ProfileEmaAlpha    *float64  `json:"profile_ema_alpha" yaml:"profile_ema_alpha"`
	DetectConcurrency  int       `json:"detect_concurrency" yaml:"detect_concurrency"`
	ReidConcurrency    int       `json:"reid_concurrency" yaml:"reid_concurrency"`
	DetectDeadlineMs   int       `json:"detect_deadline_ms" yaml:"detect_deadline_ms"`
	ReidDeadlineMs     int       `json:"reid_deadline_ms" yaml:"reid_deadline_ms"`
	MaxRetries         int       `json:"max_retries" yaml:"max_retries"`
	RecordNonDeer      *bool     `json:"record_non_deer" yaml:"record_non_deer"`
	CropPadding        *float64  `json:"crop_padding" yaml:"crop_padding"`
	CandidateK         int       `json:"candidate_k" yaml:"candidate_k"`
	GpuMaxConcurrent   int       `json:"gpu_max_concurrent" yaml:"gpu_max_concurrent"`
}

func (p PipelineSettings) GetDetectorConfidence() float64 {
	if p.DetectorConfidence == nil {
		return 0.5
	}
	return *p.DetectorConfidence
}

func (p PipelineSettings) GetIouDedupThreshold() float64 {
	if p.IouDedupThreshold == nil {
		return 0.5
	}
	return *p.IouDedupThreshold
}

func (p PipelineSettings) GetBurstWindow() time.Duration {
	if p.BurstWindowSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.BurstWindowSeconds) * time.Second
}

func (p PipelineSettings) GetReidThreshold() float64 {
	if p.ReidThreshold == nil {
		return 0.70
	}
	return *p.ReidThreshold
}

// GetEnsembleWeights returns the scoring weights. A single-element slice
// selects single-model scoring; the default is primary-only.
func (p PipelineSettings) GetEnsembleWeights() []float64 {
	if len(p.EnsembleWeights) == 0 {
		return []float64{1.0}
	}
	return p.EnsembleWeights
}

func (p PipelineSettings) GetProfileEmaAlpha() float64 {
	if p.ProfileEmaAlpha == nil {
		return 0.3
	}
	return *p.ProfileEmaAlpha
}

func (p PipelineSettings) GetDetectConcurrency() int {
	if p.DetectConcurrency <= 0 {
		return 2
	}
	return p.DetectConcurrency
}

func (p PipelineSettings) GetReidConcurrency() int {
	if p.ReidConcurrency <= 0 {
		return 16
	}
	return p.ReidConcurrency
}

func (p PipelineSettings) GetDetectDeadline() time.Duration {
	if p.DetectDeadlineMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.DetectDeadlineMs) * time.Millisecond
}

func (p PipelineSettings) GetReidDeadline() time.Duration {
	if p.ReidDeadlineMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(p.ReidDeadlineMs) * time.Millisecond
}

func (p PipelineSettings) GetMaxRetries() int {
	if p.MaxRetries <= 0 {
		return 3
	}
	return p.MaxRetries
}

// IsRecordNonDeer reports whether non-deer detections are persisted with
// class `other`. Default true; they never enter Re-ID either way.
func (p PipelineSettings) IsRecordNonDeer() bool {
	if p.RecordNonDeer == nil {
		return true
	}
	return *p.RecordNonDeer
}

func (p PipelineSettings) GetCropPadding() float64 {
	if p.CropPadding == nil {
		return 0.10
	}
	return *p.CropPadding
}

func (p PipelineSettings) GetCandidateK() int {
	if p.CandidateK <= 0 {
		return 5
	}
	return p.CandidateK
}

func (p PipelineSettings) GetGpuMaxConcurrent() int {
	if p.GpuMaxConcurrent <= 0 {
		return 2
	}
	return p.GpuMaxConcurrent
}

func (p PipelineSettings) Validate() error {
	unit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
		return nil
	}
	if err := unit("detector_confidence", p.GetDetectorConfidence()); err != nil {
		return err
	}
	if err := unit("iou_dedup_threshold", p.GetIouDedupThreshold()); err != nil {
		return err
	}
	if err := unit("reid_threshold", p.GetReidThreshold()); err != nil {
		return err
	}
	alpha := p.GetProfileEmaAlpha()
	if alpha <= 0 || alpha > 1 {
		return fmt.Errorf("profile_ema_alpha must be within (0,1], got %v", alpha)
	}
	weights := p.GetEnsembleWeights()
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("ensemble_weights must be non-negative, got %v", w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("ensemble_weights must sum to 1, got %v", sum)
	}
	if p.GetCropPadding() < 0 || p.GetCropPadding() > 1 {
		return fmt.Errorf("crop_padding must be within [0,1], got %v", p.GetCropPadding())
	}
	return nil
}

// InferenceSettings selects and parameterises the inference backend.
type InferenceSettings struct {
	Backend           string   `json:"backend" yaml:"backend"`
	DetectorModelPath string   `json:"detector_model_path" yaml:"detector_model_path"`
	EmbedderModelPath string   `json:"embedder_model_path" yaml:"embedder_model_path"`
	AuxEmbedderPaths  []string `json:"aux_embedder_paths" yaml:"aux_embedder_paths"`
	DetectorClasses   []string `json:"detector_classes" yaml:"detector_classes"`
	EmbeddingDim      int      `json:"embedding_dim" yaml:"embedding_dim"`
	EmbeddingVersion  string   `json:"embedding_version" yaml:"embedding_version"`
	DetectorInputSize int      `json:"detector_input_size" yaml:"detector_input_size"`
	EmbedderInputSize int      `json:"embedder_input_size" yaml:"embedder_input_size"`
	Endpoint          string   `json:"endpoint" yaml:"endpoint"`
}

const (
	InferenceBackendOnnx = "onnx"
	InferenceBackendHttp = "http"
)

func (i InferenceSettings) GetBackend() string {
	if i.Backend == "" {
		return InferenceBackendOnnx
	}
	return i.Backend
}

func (i InferenceSettings) GetEmbeddingDim() int {
	if i.EmbeddingDim <= 0 {
		return 512
	}
	return i.EmbeddingDim
}

func (i InferenceSettings) GetEmbeddingVersion() string {
	if i.EmbeddingVersion == "" {
		return "v1"
	}
	return i.EmbeddingVersion
}

func (i InferenceSettings) GetDetectorInputSize() int {
	if i.DetectorInputSize <= 0 {
		return 640
	}
	return i.DetectorInputSize
}

func (i InferenceSettings) GetEmbedderInputSize() int {
	if i.EmbedderInputSize <= 0 {
		return 224
	}
	return i.EmbedderInputSize
}

// GetDetectorClasses maps detector class indices to class names. The
// default matches the deer classifier head this service ships with.
func (i InferenceSettings) GetDetectorClasses() []string {
	if len(i.DetectorClasses) == 0 {
		return []string{"doe", "fawn", "mature", "mid", "young", "other"}
	}
	return i.DetectorClasses
}

// StorageSettings selects where image bytes are read from.
type StorageSettings struct {
	Backend string      `json:"backend" yaml:"backend"`
	Root    string      `json:"root" yaml:"root"`
	S3      *S3Settings `json:"s3" yaml:"s3"`
}

const (
	StorageBackendFilesystem = "filesystem"
	StorageBackendS3         = "s3"
)

func (s StorageSettings) GetBackend() string {
	if s.Backend == "" {
		return StorageBackendFilesystem
	}
	return s.Backend
}

type S3Settings struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
}

type TraceSettings struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// Mode selects which spans reach the exporter: "always" exports a
	// sampled share of everything, "error_only" exports only traces that
	// saw an error-status span.
	Mode               string   `json:"mode" yaml:"mode"`
	SamplingRatio      float64  `json:"sampling_ratio" yaml:"sampling_ratio"`
	ErrorSamplingRatio *float64 `json:"error_sampling_ratio" yaml:"error_sampling_ratio"`
}

func (t TraceSettings) GetMode() string {
	if t.Mode == "" {
		return "always"
	}
	return t.Mode
}

func (t TraceSettings) GetSamplingRatio() float64 {
	if t.SamplingRatio <= 0 {
		return 1.0
	}
	return t.SamplingRatio
}

func (t TraceSettings) GetErrorSamplingRatio() float64 {
	if t.ErrorSamplingRatio == nil {
		return 1.0
	}
	return *t.ErrorSamplingRatio
}

// MiddlewareConfig toggles the optional request middleware. Both default
// to enabled when unset.
type MiddlewareConfig struct {
	EnableLogging *bool `json:"enable_logging" yaml:"enable_logging"`
	EnableTracing *bool `json:"enable_tracing" yaml:"enable_tracing"`
}

func (m MiddlewareConfig) IsLoggingEnabled() bool {
	if m.EnableLogging == nil {
		return true
	}
	return *m.EnableLogging
}

func (m MiddlewareConfig) IsTracingEnabled() bool {
	if m.EnableTracing == nil {
		return true
	}
	return *m.EnableTracing
}

// BackfillSettings controls the in-service reassignment loop that re-enqueues
// detections which missed Re-ID. The one-shot variants live in antler-admin.
type BackfillSettings struct {
	ReassignEnabled         bool `json:"reassign_enabled" yaml:"reassign_enabled"`
	ReassignIntervalMinutes int  `json:"reassign_interval_minutes" yaml:"reassign_interval_minutes"`
	BatchSize               int  `json:"batch_size" yaml:"batch_size"`
}

func (b BackfillSettings) GetReassignInterval() time.Duration {
	if b.ReassignIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(b.ReassignIntervalMinutes) * time.Minute
}

func (b BackfillSettings) GetBatchSize() int {
	if b.BatchSize <= 0 {
		return 200
	}
	return b.BatchSize
}

var config *Config

func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	configFile, err := os.Open(configPath)
	if err != nil {
		return nil, errors.NewError().
			WithCode(errors.CodeInitializeError).
			WithMessage("failed to open config file").
			WithError(err)
	}
	defer configFile.Close()
	decoder := yaml.NewDecoder(configFile)
	err = decoder.Decode(&config)
	if err != nil {
		return nil, errors.NewError().
			WithCode(errors.CodeInitializeError).
			WithMessage("failed to parse config file").
			WithError(err)
	}
	if err := config.Pipeline.Validate(); err != nil {
		return nil, errors.NewError().
			WithCode(errors.CodeInitializeError).
			WithMessage("invalid pipeline settings").
			WithError(err)
	}
	return config, nil
}

func Get() *Config {
	return config
}
