// Package evidence writes an on-disk record of an analysis run: which
// knowledge sources fired, every oracle exchange, and the final result.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/reqlens/pkg/adapter"
)

// RunRecord captures run-level metadata.
type RunRecord struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Pipeline     string            `json:"pipeline"`
	PipelineFile string            `json:"pipeline_file,omitempty"`
	Inputs       []InputRecord     `json:"inputs"`
	Passes       int               `json:"passes"`
	Fired        []string          `json:"fired,omitempty"`
	Degraded     bool              `json:"degraded"`
	Error        string            `json:"error,omitempty"`
	ToolVersions map[string]string `json:"tool_versions,omitempty"`
	CostReport   *RunCostReport    `json:"cost_report,omitempty"`
}

// InputRecord identifies one input document.
type InputRecord struct {
	Name  string `json:"name"`
	Hash  string `json:"hash"`
	Bytes int    `json:"bytes"`
}

// SourceRecord captures one knowledge source firing.
type SourceRecord struct {
	Index          int      `json:"index"`
	Name           string   `json:"name"`
	Pass           int      `json:"pass"`
	Wrote          []string `json:"wrote,omitempty"`
	Error          string   `json:"error,omitempty"`
	DurationMillis int64    `json:"duration_ms"`
}

// OracleCallRecord captures one oracle exchange. Prompt and response bodies
// live in content-addressed blobs.
type OracleCallRecord struct {
	Task           string `json:"task"`
	Adapter        string `json:"adapter,omitempty"`
	Model          string `json:"model,omitempty"`
	PromptRef      string `json:"prompt_ref,omitempty"`
	PromptHash     string `json:"prompt_hash,omitempty"`
	ResponseRef    string `json:"response_ref,omitempty"`
	ResponseHash   string `json:"response_hash,omitempty"`
	Synthetic      bool   `json:"synthetic,omitempty"`
	Error          string `json:"error,omitempty"`
	DurationMillis int64  `json:"duration_ms"`
}

// OracleLog is the content of oracle.json.
type OracleLog struct {
	Calls []OracleCallRecord `json:"calls"`
	Cost  *RunCostReport     `json:"cost,omitempty"`
}

// RunCostReport summarizes usage and cost across adapter calls.
type RunCostReport struct {
	Currency    string               `json:"currency"`
	TotalAmount float64              `json:"total_amount"`
	TotalUsage  adapter.Usage        `json:"total_usage"`
	Calls       []adapter.CallReport `json:"calls,omitempty"`
	Budget      *BudgetStatus        `json:"budget,omitempty"`
}

// BudgetStatus reports whether the run hit its spend limit.
type BudgetStatus struct {
	MaxAmount float64 `json:"max_amount"`
	Exceeded  bool    `json:"exceeded"`
	Reason    string  `json:"reason,omitempty"`
}

// NewRunID returns a sortable, unique run identifier.
func NewRunID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// HashBytes returns the hex sha256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Writer writes evidence bundles to disk.
type Writer struct {
	baseDir string
	runDir  string
}

// NewWriter creates a new evidence writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	runDir := filepath.Join(baseDir, runID)
	for _, dir := range []string{runDir, filepath.Join(runDir, "sources"), filepath.Join(runDir, "blobs")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		if err := os.Chmod(dir, 0700); err != nil {
			return nil, err
		}
	}

	return &Writer{baseDir: baseDir, runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteSource writes a source record to sources/NN-<name>.json.
func (w *Writer) WriteSource(record SourceRecord) error {
	if record.Name == "" {
		return fmt.Errorf("source name is required")
	}
	path := filepath.Join(w.runDir, "sources", fmt.Sprintf("%02d-%s.json", record.Index, sanitize(record.Name, "source")))
	return writeJSON(path, record)
}

// WriteOracleLog writes oracle.json.
func (w *Writer) WriteOracleLog(log OracleLog) error {
	return writeJSON(filepath.Join(w.runDir, "oracle.json"), log)
}

// WriteResult writes the final result to result.json.
func (w *Writer) WriteResult(result any) error {
	return writeJSON(filepath.Join(w.runDir, "result.json"), result)
}

// WriteBlob stores content under blobs/<kind>-<sha>.txt and returns the
// run-relative reference and the content hash. Identical content maps to
// the same blob.
func (w *Writer) WriteBlob(kind string, content []byte) (string, string, error) {
	sha := HashBytes(content)
	ref := filepath.ToSlash(filepath.Join("blobs", fmt.Sprintf("%s-%s.txt", sanitize(kind, "blob"), sha[:16])))
	path := filepath.Join(w.runDir, filepath.FromSlash(ref))

	if _, err := os.Stat(path); err == nil {
		return ref, sha, nil
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return "", "", err
	}
	return ref, sha, nil
}

// sanitize keeps lowercase letters, digits, '_' and '-'.
func sanitize(s, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return fallback
	}
	return out
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
