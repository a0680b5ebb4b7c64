package main

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/tboxio/go-chunkupload/upload"
)

// progressUI renders the callbacks of one upload attempt as a progress bar.
type progressUI struct {
	bar  *progressbar.ProgressBar
	name string
	size int64
	mbps float64
}

func newProgressUI(w io.Writer, name string, size int64) *progressUI {
	return &progressUI{
		bar: progressbar.NewOptions64(size,
			progressbar.OptionSetDescription(fmt.Sprintf("Uploading %s", name)),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(false),
		),
		name: name,
		size: size,
	}
}

func (p *progressUI) callbacks() upload.Callbacks {
	return upload.Callbacks{
		OnSpeedUpdate: func(mbps float64) {
			p.mbps = mbps
		},
		OnProgress: func(percent float64) {
			_ = p.bar.Set64(int64(percent / 100 * float64(p.size)))
			p.bar.Describe(fmt.Sprintf("Uploading %s (%.1f%% - %.2f MB/s)", p.name, percent, p.mbps))
		},
		OnStateChange: func(state upload.State, index int) {
			switch state {
			case upload.StateHashing:
				p.bar.Describe(fmt.Sprintf("Hashing %s", p.name))
			case upload.StateCompleted:
				_ = p.bar.Finish()
			case upload.StateFailed:
				_ = p.bar.Exit()
			}
		},
	}
}
