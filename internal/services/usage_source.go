package services

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"usd/internal/models"
	"usd/internal/providers"

	"github.com/shirou/gopsutil/v3/process"
)

type UsageSourceInterface interface {
	// CollectUsage returns per-application usage accumulated in [start, end).
	// The usage stays unconsumed until the reading is committed.
	CollectUsage(ctx context.Context, start, end time.Time) (*models.UsageReading, error)
}

// processTimes is one process observation: cumulative CPU seconds since the
// process started.
type processTimes struct {
	Pid        int32
	CreateTime int64
	Name       string
	Exe        string
	CPUSeconds float64
}

type processLister func(ctx context.Context) ([]processTimes, error)

// ProcessUsageSource reports CPU time consumed per executable since the last
// committed reading. The first sighting of a process that started before the
// window only sets a baseline, so boot-time totals are never reported as
// fresh usage.
type ProcessUsageSource struct {
	mu       sync.Mutex
	list     processLister
	baseline map[string]float64
	logger   providers.Logger
}

func NewProcessUsageSource(logger providers.Logger) UsageSourceInterface {
	return &ProcessUsageSource{
		list:     listProcesses,
		baseline: make(map[string]float64),
		logger:   logger,
	}
}

func (p *ProcessUsageSource) CollectUsage(ctx context.Context, start, end time.Time) (*models.UsageReading, error) {
	procs, err := p.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	startMillis := start.UnixMilli()
	usage := make(map[string]*models.Record)
	next := make(map[string]float64, len(procs))

	for _, proc := range procs {
		key := fmt.Sprintf("%d:%d", proc.Pid, proc.CreateTime)
		next[key] = proc.CPUSeconds

		prev, seen := p.baseline[key]
		if !seen && proc.CreateTime < startMillis {
			// A baseline reports nothing, so it is kept even uncommitted.
			p.baseline[key] = proc.CPUSeconds
			continue
		}

		delta := proc.CPUSeconds - prev
		if delta <= 0 {
			continue
		}

		pkg := proc.Exe
		if pkg == "" {
			pkg = proc.Name
		}
		if pkg == "" {
			continue
		}
		rec, ok := usage[pkg]
		if !ok {
			rec = &models.Record{PackageName: pkg, AppLabel: appLabel(proc)}
			usage[pkg] = rec
		}
		rec.UsageMillisIncrement += uint64(math.Round(delta * 1000))
	}

	records := make([]models.Record, 0, len(usage))
	for _, rec := range usage {
		if rec.UsageMillisIncrement > 0 {
			records = append(records, *rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].PackageName < records[j].PackageName })

	p.logger.Debugf(providers.TypeCollector, "Observed %d processes, %d with usage in [%s, %s)",
		len(procs), len(records), start.Format(time.RFC3339), end.Format(time.RFC3339))
	return models.NewUsageReading(records, func() { p.commit(next) }), nil
}

func (p *ProcessUsageSource) commit(next map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseline = next
}

func appLabel(proc processTimes) string {
	if proc.Name != "" {
		return proc.Name
	}
	return filepath.Base(proc.Exe)
}

func listProcesses(ctx context.Context) ([]processTimes, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]processTimes, 0, len(procs))
	for _, proc := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		times, err := proc.TimesWithContext(ctx)
		if err != nil {
			// exited or not ours to inspect
			continue
		}
		createTime, err := proc.CreateTimeWithContext(ctx)
		if err != nil {
			continue
		}
		name, _ := proc.NameWithContext(ctx)
		exe, _ := proc.ExeWithContext(ctx)
		out = append(out, processTimes{
			Pid:        proc.Pid,
			CreateTime: createTime,
			Name:       name,
			Exe:        exe,
			CPUSeconds: times.User + times.System,
		})
	}
	return out, nil
}
