// Package fileexplorer produces short, file-type-aware descriptions of
// diverted file content: a schema/shape summary for structured data, and
// an LLM-produced description for code and prose, so an agent can learn
// what a large captured file held without re-reading the whole blob.
package fileexplorer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dpalmqvist/lossless-context-management/lcmerr"
	"github.com/dpalmqvist/lossless-context-management/llmclient"
	"github.com/dpalmqvist/lossless-context-management/store"
)

// Result is analyze(ref)'s return value.
type Result struct {
	FileType string
	Summary  string
}

const (
	deterministicReadCap = 50_000
	codeReadCap          = 30_000
	genericReadCap       = 20_000
	classifyPromptCap    = 5_000

	codeTargetTokens    = 600
	genericTargetTokens = 300

	maxShapeDepth = 3
	maxShapeKeys  = 10
)

var deterministicKinds = map[string]string{
	".json":   "json",
	".jsonl":  "jsonl",
	".ndjson": "jsonl",
	".csv":    "csv",
	".tsv":    "tsv",
}

var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".go": true, ".rs": true, ".java": true, ".rb": true,
}

// classifyLabels are offered to Classify when a file's extension is
// neither in the deterministic set nor a known code extension.
var classifyLabels = []string{"code", "prose"}

// Analyzer dispatches a diverted file to deterministic, code, or generic
// analysis based on its extension.
type Analyzer struct {
	llm    llmclient.Client
	logger *zap.Logger
}

// New builds an Analyzer. logger may be nil.
func New(llm llmclient.Client, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{llm: llm, logger: logger.With(zap.String("component", "fileexplorer"))}
}

// Analyze reads ref's content back from blob storage and produces a
// type-aware description of it.
func (a *Analyzer) Analyze(ctx context.Context, ref *store.FileRef) (Result, error) {
	content, err := readBlob(ref.StorageURI)
	if err != nil {
		return Result{}, lcmerr.InputError("analyze_file", err)
	}

	ext := strings.ToLower(filepath.Ext(ref.Path))

	if kind, ok := deterministicKinds[ext]; ok {
		return a.analyzeDeterministic(kind, truncate(content, deterministicReadCap))
	}

	if codeExtensions[ext] {
		return a.analyzeCode(ctx, ext, truncate(content, codeReadCap))
	}

	label, err := a.llm.Classify(ctx, truncate(content, classifyPromptCap), classifyLabels)
	if err != nil {
		a.logger.Warn("classify failed for undetermined file type, falling back to generic analysis", zap.Error(err))
		return a.analyzeGeneric(ctx, truncate(content, genericReadCap))
	}
	if label == "code" {
		return a.analyzeCode(ctx, ext, truncate(content, codeReadCap))
	}
	return a.analyzeGeneric(ctx, truncate(content, genericReadCap))
}

func (a *Analyzer) analyzeDeterministic(kind, content string) (Result, error) {
	switch kind {
	case "json":
		return analyzeJSON(content), nil
	case "jsonl":
		return analyzeJSONL(content), nil
	case "csv":
		return analyzeDelimited("csv", content, ','), nil
	case "tsv":
		return analyzeDelimited("tsv", content, '\t'), nil
	default:
		return Result{}, fmt.Errorf("fileexplorer: unhandled deterministic kind %q", kind)
	}
}

func analyzeJSON(content string) Result {
	var v interface{}
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Result{FileType: "json", Summary: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return Result{FileType: "json", Summary: "shape: " + describeShape(v, 0)}
}

func analyzeJSONL(content string) Result {
	lines := nonEmptyLines(content)
	if len(lines) == 0 {
		return Result{FileType: "jsonl", Summary: "0 records"}
	}
	shape := "unknown"
	var first interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err == nil {
		shape = describeShape(first, 0)
	}
	return Result{FileType: "jsonl", Summary: fmt.Sprintf("%d records, first record shape: %s", len(lines), shape)}
}

func analyzeDelimited(fileType, content string, delim rune) Result {
	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil || len(rows) == 0 {
		return Result{FileType: fileType, Summary: "could not parse rows"}
	}
	return Result{
		FileType: fileType,
		Summary:  fmt.Sprintf("%d rows, columns: %s", len(rows)-1, strings.Join(rows[0], ", ")),
	}
}

// describeShape recursively describes a decoded JSON value's shape,
// capping object key listing at maxShapeKeys and recursion at
// maxShapeDepth.
func describeShape(v interface{}, depth int) string {
	if depth > maxShapeDepth {
		return "…"
	}
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		shown := keys
		omitted := 0
		if len(shown) > maxShapeKeys {
			omitted = len(shown) - maxShapeKeys
			shown = shown[:maxShapeKeys]
		}
		parts := make([]string, 0, len(shown))
		for _, k := range shown {
			parts = append(parts, fmt.Sprintf("%q: %s", k, describeShape(val[k], depth+1)))
		}
		body := strings.Join(parts, ", ")
		if omitted > 0 {
			body += fmt.Sprintf(", …(%d more keys)", omitted)
		}
		return "{" + body + "}"
	case []interface{}:
		if len(val) == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%s, …](%d items)", describeShape(val[0], depth+1), len(val))
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func (a *Analyzer) analyzeCode(ctx context.Context, ext, content string) (Result, error) {
	prompt := fmt.Sprintf("Extract the public signatures and overall structure of this %s file. List functions, types, and their purpose; do not reproduce full bodies.\n\n%s", strings.TrimPrefix(ext, "."), content)
	text, err := a.llm.Summarize(ctx, []llmclient.Message{{Role: "user", Content: prompt}}, llmclient.KindPreserveDetails, codeTargetTokens)
	if err != nil {
		return Result{FileType: "code", Summary: fmt.Sprintf("%d lines (analysis unavailable: %v)", strings.Count(content, "\n")+1, err)}, nil
	}
	return Result{FileType: "code", Summary: text}, nil
}

func (a *Analyzer) analyzeGeneric(ctx context.Context, content string) (Result, error) {
	prompt := "Describe the contents of this file in a few bullet points.\n\n" + content
	text, err := a.llm.Summarize(ctx, []llmclient.Message{{Role: "user", Content: prompt}}, llmclient.KindBulletPoints, genericTargetTokens)
	if err != nil {
		return Result{FileType: "text", Summary: fmt.Sprintf("%d bytes (analysis unavailable: %v)", len(content), err)}, nil
	}
	return Result{FileType: "text", Summary: text}, nil
}

func readBlob(storageURI string) (string, error) {
	const filePrefix = "file://"
	if !strings.HasPrefix(storageURI, filePrefix) {
		return "", fmt.Errorf("fileexplorer: unsupported storage scheme in %q", storageURI)
	}
	data, err := os.ReadFile(strings.TrimPrefix(storageURI, filePrefix))
	if err != nil {
		return "", fmt.Errorf("fileexplorer: read blob: %w", err)
	}
	return string(data), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func nonEmptyLines(content string) []string {
	var lines []string
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
