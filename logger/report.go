package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var (
	warnCounts  sync.Map // map[string]*int64 by component
	errorCounts sync.Map // map[string]*int64 by component

	klinesFetched   int64
	ordersSubmitted int64
	ordersCancelled int64
	ticksCompleted  int64
	ticksDegraded   int64
)

func recordWarn(component string) {
	v, _ := warnCounts.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordError(component string) {
	v, _ := errorCounts.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// IncrementKlinesFetched counts one candle-window fetch from any venue.
func IncrementKlinesFetched() { atomic.AddInt64(&klinesFetched, 1) }

// IncrementOrdersSubmitted counts one accepted order submission.
func IncrementOrdersSubmitted() { atomic.AddInt64(&ordersSubmitted, 1) }

// IncrementOrdersCancelled counts one cancel request.
func IncrementOrdersCancelled() { atomic.AddInt64(&ordersCancelled, 1) }

// IncrementTick counts a completed tick; degraded marks ticks where trading
// was suppressed by the health check.
func IncrementTick(degraded bool) {
	atomic.AddInt64(&ticksCompleted, 1)
	if degraded {
		atomic.AddInt64(&ticksDegraded, 1)
	}
}

// StartReport begins periodic logging of runtime statistics and, when the
// CloudWatch client is configured, publishes them as metrics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	warns := map[string]int64{}
	warnCounts.Range(func(k, v any) bool {
		warns[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	errors := map[string]int64{}
	errorCounts.Range(func(k, v any) bool {
		errors[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})

	fields := Fields{
		"klines_fetched":   atomic.LoadInt64(&klinesFetched),
		"orders_submitted": atomic.LoadInt64(&ordersSubmitted),
		"orders_cancelled": atomic.LoadInt64(&ordersCancelled),
		"ticks_completed":  atomic.LoadInt64(&ticksCompleted),
		"ticks_degraded":   atomic.LoadInt64(&ticksDegraded),
		"goroutines":       runtime.NumGoroutine(),
		"heap_mb":          int64(memStats.HeapAlloc) / 1024 / 1024,
		"warns":            warns,
		"errors":           errors,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("KlinesFetched"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&klinesFetched)))},
		{MetricName: aws.String("OrdersSubmitted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&ordersSubmitted)))},
		{MetricName: aws.String("OrdersCancelled"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&ordersCancelled)))},
		{MetricName: aws.String("TicksCompleted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&ticksCompleted)))},
		{MetricName: aws.String("TicksDegraded"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&ticksDegraded)))},
		{MetricName: aws.String("Goroutines"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(runtime.NumGoroutine()))},
		{MetricName: aws.String("HeapMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.HeapAlloc) / 1024 / 1024)},
	}

	for component, count := range errors {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("Errors"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Component"), Value: aws.String(component)}},
			Value:      aws.Float64(float64(count)),
		})
	}

	publishMetrics(ctx, data)
}
