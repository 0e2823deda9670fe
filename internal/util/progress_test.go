package util

import (
	"testing"

	"github.com/OFFIS-RIT/decaygraph/pkg/logger"
	"github.com/OFFIS-RIT/decaygraph/pkg/logger/memory"
)

func TestBuildProgressLogsEveryTenPercent(t *testing.T) {
	mem := memory.NewMemoryLogger()
	logger.Init(mem)
	t.Cleanup(func() { logger.Init() })

	p := NewBuildProgress("assemble", 40)
	for i := 0; i < 40; i++ {
		p.Step()
	}

	if p.Done() != 40 {
		t.Fatalf("expected 40 steps, got %d", p.Done())
	}
	if p.Percentage() != 100 {
		t.Fatalf("expected 100%%, got %d", p.Percentage())
	}
	if got := len(mem.Entries("info")); got != 10 {
		t.Fatalf("expected 10 progress lines, got %d", got)
	}
}

func TestBuildProgressEmpty(t *testing.T) {
	p := NewBuildProgress("assemble", 0)
	if p.Percentage() != 100 {
		t.Fatalf("expected 100%% for an empty build, got %d", p.Percentage())
	}
}
