package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/llamabridge/llamabridge/internal/channel"
	"github.com/llamabridge/llamabridge/internal/prune"
	"github.com/llamabridge/llamabridge/internal/tool"
)

// modalityResult is the settled outcome of one analysis job. err holds a
// degraded-evidence string, never a hard failure.
type modalityResult struct {
	text       string
	detections []detection
	err        string
}

type detection struct {
	label      string
	confidence float64
}

func (r *Resolver) resolveImage(ctx context.Context, key string, ref *channel.MediaRef, caption string) (Resolved, error) {
	if ref.DeclaredSize > 0 && ref.DeclaredSize > r.vision.MaxBytes {
		return Resolved{}, fmt.Errorf("%w: declared %d bytes, max %d", ErrImageTooLarge, ref.DeclaredSize, r.vision.MaxBytes)
	}

	var ocr, describe, detect modalityResult

	path, err := r.download(ctx, ref, r.vision.MaxBytes, ErrImageTooLarge)
	if err != nil {
		if isSizeErr(err) {
			return Resolved{}, err
		}
		r.logger.Warn("image download failed", slog.String("key", key), slog.Any("error", err))
		reason := fmt.Sprintf("not available: %v", err)
		ocr.err, describe.err, detect.err = reason, reason, reason
	} else {
		defer func() {
			_ = os.Remove(path)
		}()
		ocr, describe, detect = r.analyzeImage(ctx, path)
	}

	hasEvidence := ocr.text != "" || describe.text != "" || len(detect.detections) > 0
	if r.vision.RequireEvidence && !hasEvidence {
		r.logger.Info("image analysis produced no evidence", slog.String("key", key))
		return Resolved{Source: SourceNoEvidence}, nil
	}

	prompt := r.synthesizePrompt(caption, ocr, describe, detect)
	return Resolved{Text: prompt, Source: SourceImage}, nil
}

// analyzeImage runs the three analysis jobs concurrently. Each job is
// failure-isolated: one failing records its error string while the others
// still settle normally. The synthesis step waits for all three.
func (r *Resolver) analyzeImage(ctx context.Context, path string) (ocr, describe, detect modalityResult) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		ocr = r.runTextModality(ctx, r.vision.OCRScript, path)
	}()
	go func() {
		defer wg.Done()
		describe = r.runTextModality(ctx, r.vision.DescribeScript, path)
	}()
	go func() {
		defer wg.Done()
		detect = r.runDetection(ctx, path)
	}()

	wg.Wait()
	return ocr, describe, detect
}

func (r *Resolver) runTextModality(ctx context.Context, script, path string) modalityResult {
	res, err := r.runner.Run(ctx, tool.Job{
		Program: r.tools.Python,
		Script:  r.scriptPath(script),
		Payload: map[string]any{"image_path": path},
		Timeout: r.tools.Timeout(),
	})
	if err != nil {
		return modalityResult{err: fmt.Sprintf("not available: %v", err)}
	}
	text := strings.TrimSpace(res.Text("text"))
	if text == "" {
		return modalityResult{err: "not available: empty result"}
	}
	return modalityResult{text: text}
}

func (r *Resolver) runDetection(ctx context.Context, path string) modalityResult {
	res, err := r.runner.Run(ctx, tool.Job{
		Program: r.tools.Python,
		Script:  r.scriptPath(r.vision.DetectScript),
		Payload: map[string]any{"image_path": path},
		Timeout: r.tools.Timeout(),
	})
	if err != nil {
		return modalityResult{err: fmt.Sprintf("not available: %v", err)}
	}

	raw, _ := res.Fields["detections"].([]any)
	detections := make([]detection, 0, len(raw))
	for _, item := range raw {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label, _ := fields["label"].(string)
		if strings.TrimSpace(label) == "" {
			continue
		}
		confidence, _ := fields["confidence"].(float64)
		detections = append(detections, detection{label: label, confidence: confidence})
	}
	return modalityResult{detections: detections}
}

// synthesizePrompt combines caption and the settled modality results into
// one user-turn prompt for the completion client.
func (r *Resolver) synthesizePrompt(caption string, ocr, describe, detect modalityResult) string {
	var sb strings.Builder
	sb.WriteString("The user sent an image.")
	if caption != "" {
		sb.WriteString("\nCaption: ")
		sb.WriteString(caption)
	}

	sb.WriteString("\nText found in the image (OCR): ")
	if ocr.text != "" {
		sb.WriteString(prune.Clip(ocr.text, r.vision.OCRCharBudget))
	} else {
		sb.WriteString(orUnavailable(ocr.err))
	}

	sb.WriteString("\nVisual description: ")
	if describe.text != "" {
		sb.WriteString(prune.Clip(describe.text, r.vision.VLMCharBudget))
	} else {
		sb.WriteString(orUnavailable(describe.err))
	}

	sb.WriteString("\nDetected objects: ")
	if summary := summarizeDetections(detect.detections, r.vision.DetectionTopN); summary != "" {
		sb.WriteString(summary)
	} else {
		sb.WriteString(orUnavailable(detect.err))
	}

	sb.WriteString("\n\nReply to the user based on this image content.")
	return sb.String()
}

func orUnavailable(errText string) string {
	if errText != "" {
		return errText
	}
	return "not available"
}

// summarizeDetections ranks labels by frequency and reports the top n with
// count and mean confidence.
func summarizeDetections(detections []detection, n int) string {
	if len(detections) == 0 {
		return ""
	}
	counts := make(map[string]int)
	confSums := make(map[string]float64)
	for _, d := range detections {
		counts[d.label]++
		confSums[d.label] += d.confidence
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return labels[i] < labels[j]
	})
	if n > 0 && len(labels) > n {
		labels = labels[:n]
	}

	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		mean := confSums[label] / float64(counts[label])
		parts = append(parts, fmt.Sprintf("%s x%d (avg conf %.2f)", label, counts[label], mean))
	}
	return strings.Join(parts, ", ")
}
