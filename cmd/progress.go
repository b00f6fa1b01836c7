package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xhad/embedsync/pkg/pipeline"
)

type progressMode string

const (
	progressBar  progressMode = "bar"
	progressLog  progressMode = "log"
	progressNone progressMode = "none"
)

func parseProgressMode(s string) (progressMode, error) {
	switch mode := progressMode(s); mode {
	case progressBar, progressLog, progressNone:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid --progress %q (want bar, log or none)", s)
	}
}

// reporter renders pipeline events. In bar mode there is one bar per phase;
// in log mode the pipeline's own periodic log lines are the progress output.
type reporter struct {
	mode progressMode
	out  io.Writer
	bar  *progressbar.ProgressBar
	kind pipeline.EventKind
}

func newReporter(mode progressMode, out io.Writer) *reporter {
	return &reporter{mode: mode, out: out}
}

// pipelineLogger keeps info-level pipeline logs out of the way of the bars.
// Warnings and write failures are still shown.
func (r *reporter) pipelineLogger(logger *zap.Logger) *zap.Logger {
	if r.mode == progressLog {
		return logger
	}
	return logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
}

func (r *reporter) handle(e pipeline.Event) {
	if r.mode != progressBar {
		return
	}

	var description string
	switch e.Kind {
	case pipeline.EventBatchEmbedded:
		description = " Generating embeddings"
	case pipeline.EventChunkPersisted:
		description = " Uploading embeddings"
	case pipeline.EventDocumentUpdated:
		description = " Updating documents"
	default:
		return
	}

	if r.bar == nil || r.kind != e.Kind {
		r.finish()
		r.bar = getProgressBar(r.out, e.Total, description)
		r.kind = e.Kind
	}
	_ = r.bar.Set(e.Done)
	if e.Done == e.Total {
		r.finish()
	}
}

func (r *reporter) finish() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	fmt.Fprintln(r.out)
	r.bar = nil
}

func getProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
