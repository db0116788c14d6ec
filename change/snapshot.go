package change

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/hazyhaar/veillebot/store"
)

// CompressAndEncode zlib-compresses content and base64-encodes the result,
// the storage shape for both sides of a ForensicSnapshot.
func CompressAndEncode(content string) (string, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(content)); err != nil {
		w.Close()
		return "", fmt.Errorf("change: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("change: compress close: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeAndDecompress reverses CompressAndEncode.
func DecodeAndDecompress(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("change: base64 decode: %w", err)
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("change: zlib reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("change: decompress: %w", err)
	}
	return string(out), nil
}

// BuildSnapshot zlib-compresses both raw (pre-filter) contents and
// assembles a ForensicSnapshot ready to push onto a monitor's ring.
func BuildSnapshot(oldRaw, newRaw string, changeType store.ChangeType, metrics Metrics, diffSummary string, diffTruncated bool, now time.Time) (store.ForensicSnapshot, error) {
	oldEnc, err := CompressAndEncode(oldRaw)
	if err != nil {
		return store.ForensicSnapshot{}, err
	}
	newEnc, err := CompressAndEncode(newRaw)
	if err != nil {
		return store.ForensicSnapshot{}, err
	}

	return store.ForensicSnapshot{
		Timestamp:             now,
		OldContentCompressed:  oldEnc,
		NewContentCompressed:  newEnc,
		ChangeType:            changeType,
		SimilarityMetrics: map[string]float64{
			"jaccard":            metrics.Jaccard,
			"levenshtein_ratio":  metrics.LevenshteinRatio,
			"semantic":           metrics.Semantic,
			"final":              metrics.Final,
		},
		DiffSummary:   diffSummary,
		DiffTruncated: diffTruncated,
	}, nil
}

// ReplayResult is the recomputed outcome of replaying a forensic snapshot.
type ReplayResult struct {
	Metrics    Metrics
	Alert      bool
	ChangeType string
	Diff       string
	Truncated  bool
}

// Replay decompresses both sides of snap and re-runs the detector with the
// current algorithms, for audit or dispute resolution.
func Replay(snap store.ForensicSnapshot, oldSignature, newSignature string, threshold float64) (ReplayResult, error) {
	oldText, err := DecodeAndDecompress(snap.OldContentCompressed)
	if err != nil {
		return ReplayResult{}, err
	}
	newText, err := DecodeAndDecompress(snap.NewContentCompressed)
	if err != nil {
		return ReplayResult{}, err
	}

	metrics := Compute(oldText, newText, oldSignature, newSignature)
	alert, changeType := Classify(metrics.Final, threshold)
	diff, truncated := SafeDiff(oldText, newText)

	return ReplayResult{
		Metrics:    metrics,
		Alert:      alert,
		ChangeType: changeType,
		Diff:       diff,
		Truncated:  truncated,
	}, nil
}
