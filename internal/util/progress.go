package util

import (
	"time"

	"github.com/OFFIS-RIT/decaygraph/pkg/logger"
)

const progressStepPercent = 10

// BuildProgress logs how many graphs of a build pass have been assembled,
// once per crossed 10% step.
type BuildProgress struct {
	label    string
	total    int
	done     int
	lastStep int
	started  time.Time
}

func NewBuildProgress(label string, total int) *BuildProgress {
	return &BuildProgress{label: label, total: total, started: time.Now()}
}

// Percentage returns the completed share in whole percent.
func (p *BuildProgress) Percentage() int32 {
	if p.total <= 0 {
		return 100
	}
	return int32(int64(min(p.done, p.total)) * 100 / int64(p.total))
}

// Step records one completed item.
func (p *BuildProgress) Step() {
	p.done++
	pct := int(p.Percentage())
	step := pct / progressStepPercent
	if step <= p.lastStep {
		return
	}
	p.lastStep = step
	logger.Info("["+p.label+"] Progress",
		"done", p.done,
		"total", p.total,
		"percent", pct,
		"elapsed", time.Since(p.started).Round(time.Millisecond),
	)
}

// Done returns the number of completed items.
func (p *BuildProgress) Done() int {
	return p.done
}
