package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики загрузки и удаления SOH.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_soh_uploads_total",
		Help: "Количество загрузок SOH по итогу обработки",
	}, []string{"outcome"}) // outcome: completed, validation_error, system_error, rejected

	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_soh_rows_total",
		Help: "Количество строк SOH по результату",
	}, []string{"result"}) // result: stored, skipped

	batchesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockflow_soh_batches_committed_total",
		Help: "Количество зафиксированных пакетов записи строк SOH",
	})

	deletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_soh_deletions_total",
		Help: "Исходы запросов и подтверждений удаления загрузок",
	}, []string{"outcome"}) // outcome: requested, confirmed, expired, invalid
)
