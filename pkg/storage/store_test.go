package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/respiralab/coughdx/pkg/logging"
)

// TestDetectMode checks mode resolution from explicit settings and the
// bucket-presence fallback.
func TestDetectMode(t *testing.T) {
	type test struct {
		name   string
		config *Config
		want   Mode
	}

	tests := []test{
		{"explicit local", &Config{Mode: "local"}, ModeLocal},
		{"explicit s3", &Config{Mode: "s3"}, ModeS3},
		{"explicit s3 uppercase", &Config{Mode: "S3"}, ModeS3},
		{"auto without bucket", &Config{Mode: "auto"}, ModeLocal},
		{"auto with bucket", &Config{Mode: "auto", S3: S3Config{Bucket: "recordings"}}, ModeS3},
		{"empty without bucket", &Config{}, ModeLocal},
		{"empty with bucket", &Config{S3: S3Config{Bucket: "recordings"}}, ModeS3},
		{"explicit local overrides bucket", &Config{Mode: "local", S3: S3Config{Bucket: "recordings"}}, ModeLocal},
	}

	for _, tt := range tests {
		if got := DetectMode(tt.config); got != tt.want {
			t.Errorf("DetectMode(%s): want %s, got %s", tt.name, tt.want, got)
		}
	}
}

// TestNewStoreSelection checks the factory creates the store matching the
// resolved mode.
func TestNewStoreSelection(t *testing.T) {
	localConfig := DefaultConfig()
	store, err := NewStore(localConfig, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewStore(local): unexpected error: %v", err)
	}
	if _, ok := store.(*LocalStore); !ok {
		t.Errorf("NewStore(local): want *LocalStore, got %T", store)
	}

	s3Config := DefaultConfig()
	s3Config.S3.Bucket = "recordings"
	s3Config.S3.SessionID = "run-1"
	s3Config.S3.AccessKey = "key"
	s3Config.S3.SecretKey = "secret"

	store, err = NewStore(s3Config, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewStore(s3): unexpected error: %v", err)
	}
	if _, ok := store.(*S3Store); !ok {
		t.Errorf("NewStore(s3): want *S3Store, got %T", store)
	}
}

// TestLocalStoreRoundTrip checks fetching a recording and writing a report
// through the local exchange directories.
func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inputDir := filepath.Join(dir, "input")
	outputDir := filepath.Join(dir, "output")

	if err := os.MkdirAll(inputDir, 0755); err != nil {
		t.Fatalf("failed to create input dir: %v", err)
	}

	recording := []byte("not really a wav")
	if err := os.WriteFile(filepath.Join(inputDir, "cough.wav"), recording, 0644); err != nil {
		t.Fatalf("failed to seed recording: %v", err)
	}

	store, err := NewLocalStore(&Config{
		InputDir:      inputDir,
		AudioFilename: "cough.wav",
		OutputDir:     outputDir,
	}, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewLocalStore: unexpected error: %v", err)
	}

	name, reader, err := store.FetchInput(context.Background())
	if err != nil {
		t.Fatalf("FetchInput: unexpected error: %v", err)
	}
	defer reader.Close()

	if name != "cough.wav" {
		t.Errorf("FetchInput: want name cough.wav, got %s", name)
	}

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("FetchInput: failed to read: %v", err)
	}
	if string(got) != string(recording) {
		t.Errorf("FetchInput: content mismatch, want %q, got %q", recording, got)
	}

	report := []byte("Prediction: viral\n")
	destination, err := store.StoreReport(context.Background(), "output.txt", report)
	if err != nil {
		t.Fatalf("StoreReport: unexpected error: %v", err)
	}

	wantPath := filepath.Join(outputDir, "output.txt")
	if destination != wantPath {
		t.Errorf("StoreReport: want destination %s, got %s", wantPath, destination)
	}

	written, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("StoreReport: report not written: %v", err)
	}
	if string(written) != string(report) {
		t.Errorf("StoreReport: content mismatch, want %q, got %q", report, written)
	}
}

// TestLocalStoreMissingInput checks the error when the recording is absent.
func TestLocalStoreMissingInput(t *testing.T) {
	store, err := NewLocalStore(&Config{
		InputDir:      t.TempDir(),
		AudioFilename: "missing.wav",
		OutputDir:     t.TempDir(),
	}, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewLocalStore: unexpected error: %v", err)
	}

	if _, _, err := store.FetchInput(context.Background()); err == nil {
		t.Error("FetchInput(missing): want error, got nil")
	}
}

// TestLocalStoreValidation checks constructor validation.
func TestLocalStoreValidation(t *testing.T) {
	type test struct {
		name   string
		config *Config
	}

	tests := []test{
		{"empty input dir", &Config{AudioFilename: "a.wav", OutputDir: "/tmp"}},
		{"empty filename", &Config{InputDir: "/tmp", OutputDir: "/tmp"}},
		{"empty output dir", &Config{InputDir: "/tmp", AudioFilename: "a.wav"}},
	}

	for _, tt := range tests {
		if _, err := NewLocalStore(tt.config, &logging.NoOpLogger{}); err == nil {
			t.Errorf("NewLocalStore(%s): want error, got nil", tt.name)
		}
	}
}

// TestNewS3StoreValidation checks s3 constructor validation.
func TestNewS3StoreValidation(t *testing.T) {
	noBucket := DefaultConfig()
	noBucket.S3.SessionID = "run-1"
	if _, err := NewS3Store(noBucket, &logging.NoOpLogger{}); err == nil {
		t.Error("NewS3Store(no bucket): want error, got nil")
	}

	noSession := DefaultConfig()
	noSession.S3.Bucket = "recordings"
	if _, err := NewS3Store(noSession, &logging.NoOpLogger{}); err == nil {
		t.Error("NewS3Store(no session): want error, got nil")
	}
}

// TestContentTypeForName checks report MIME type selection.
func TestContentTypeForName(t *testing.T) {
	type test struct {
		name string
		want string
	}

	tests := []test{
		{"output.txt", "text/plain"},
		{"output.json", "application/json"},
		{"output.yaml", "application/x-yaml"},
		{"output.yml", "application/x-yaml"},
		{"output", "text/plain"},
	}

	for _, tt := range tests {
		if got := contentTypeForName(tt.name); got != tt.want {
			t.Errorf("contentTypeForName(%s): want %s, got %s", tt.name, tt.want, got)
		}
	}
}
