package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
)

// ReportCache shares cycle reports across replicas.
type ReportCache interface {
	SaveReport(ctx context.Context, report model.CycleReport) error
	LatestReport(ctx context.Context, currency string) (model.CycleReport, bool, error)
	RecentReports(ctx context.Context, currency string, n int) ([]model.CycleReport, error)
}

// Journal records every cycle report: an in-memory ring for the admin API,
// an optional shared cache and an append-only JSONL file.
type Journal struct {
	reports chan model.CycleReport
	file    *os.File
	buffer  *reportBuffer
	cache   ReportCache
	done    chan struct{}
}

// NewJournal starts the background writer. An empty dir disables the file.
func NewJournal(dir string, cache ReportCache) (*Journal, error) {
	j := &Journal{
		reports: make(chan model.CycleReport, 256), // 缓冲区 256
		buffer:  newReportBuffer(200),
		cache:   cache,
		done:    make(chan struct{}),
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		// 简单的按启动日期分文件
		filename := filepath.Join(dir, "cycles-"+time.Now().UTC().Format("2006-01-02")+".jsonl")
		f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		j.file = f
	}

	go j.process()
	return j, nil
}

func (j *Journal) Record(report model.CycleReport) {
	j.buffer.Add(report)
	select {
	case j.reports <- report:
	default:
		// 队列满时丢弃，内存环形缓冲仍保留该报告
		logger.Warn("cycle journal queue full, dropping report", "cycle_id", report.ID)
	}
}

// Latest returns the most recent report for currency.
func (j *Journal) Latest(ctx context.Context, currency string) (model.CycleReport, bool) {
	if j.cache != nil {
		report, ok, err := j.cache.LatestReport(ctx, strings.ToUpper(currency))
		if err == nil && ok {
			return report, true
		}
	}
	recent := j.buffer.List(currency, 1)
	if len(recent) == 0 {
		return model.CycleReport{}, false
	}
	return recent[0], true
}

// Recent returns up to limit reports, newest first.
func (j *Journal) Recent(ctx context.Context, currency string, limit int) []model.CycleReport {
	if j.cache != nil {
		reports, err := j.cache.RecentReports(ctx, strings.ToUpper(currency), limit)
		if err == nil && len(reports) > 0 {
			return reports
		}
	}
	return j.buffer.List(currency, limit)
}

func (j *Journal) process() {
	defer close(j.done)
	var encoder *json.Encoder
	if j.file != nil {
		encoder = json.NewEncoder(j.file)
	}
	for report := range j.reports {
		if j.cache != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := j.cache.SaveReport(ctx, report); err != nil {
				logger.Warn("failed to cache cycle report", "cycle_id", report.ID, "error", err)
			}
			cancel()
		}
		if encoder != nil {
			if err := encoder.Encode(report); err != nil {
				logger.Warn("failed to write cycle journal", "cycle_id", report.ID, "error", err)
			}
		}
	}
}

// Close flushes pending reports.
func (j *Journal) Close() {
	close(j.reports)
	<-j.done
	if j.file != nil {
		j.file.Close()
	}
}

type reportBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []model.CycleReport
	nextIndex int
}

func newReportBuffer(maxSize int) *reportBuffer {
	if maxSize <= 0 {
		maxSize = 200
	}
	return &reportBuffer{
		maxSize: maxSize,
		records: make([]model.CycleReport, 0, maxSize),
	}
}

func (b *reportBuffer) Add(report model.CycleReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, report)
		return
	}
	b.records[b.nextIndex] = report
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

func (b *reportBuffer) List(currency string, limit int) []model.CycleReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]model.CycleReport, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		r := b.records[idx]
		if currency != "" && !strings.EqualFold(r.Currency, currency) {
			continue
		}
		results = append(results, r)
		if len(results) >= limit {
			break
		}
	}
	return results
}
