package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/feedmix/internal/config"
	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

var (
	archiveWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedmix_archive_write_total",
			Help: "Total number of reports written to the archive",
		},
		[]string{"status"}, // "success" or "error"
	)

	archiveWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedmix_archive_write_errors_total",
			Help: "Total number of archive write errors",
		},
		[]string{"error_type"},
	)

	archiveWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedmix_archive_write_latency_seconds",
			Help:    "Archive batch write latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
	)

	archiveQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedmix_archive_queue_depth",
			Help: "Current depth of the archive write queue",
		},
	)
)

// ArchiveSchema creates the archive table
const ArchiveSchema = `
CREATE TABLE IF NOT EXISTS daily_report_archive (
	report_date DATE PRIMARY KEY,
	total_feed  DOUBLE PRECISION NOT NULL,
	total_mix   DOUBLE PRECISION NOT NULL,
	payload     JSONB NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL
)`

const upsertArchiveSQL = `
	INSERT INTO daily_report_archive (report_date, total_feed, total_mix, payload, archived_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (report_date) DO UPDATE SET
		total_feed = EXCLUDED.total_feed,
		total_mix = EXCLUDED.total_mix,
		payload = EXCLUDED.payload,
		archived_at = EXCLUDED.archived_at
`

// WriteConfig holds configuration for archive write operations
type WriteConfig struct {
	BatchSize  int
	Interval   time.Duration
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultWriteConfig returns the write settings used by the services
func DefaultWriteConfig() WriteConfig {
	return WriteConfig{
		BatchSize:  50,
		Interval:   2 * time.Second,
		QueueSize:  256,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
	}
}

// NewArchiveRecord builds the archive row of a report
func NewArchiveRecord(report *models.DailyReport, archivedAt time.Time) (*ArchiveRecord, error) {
	day, err := models.ParseReportDate(report.Date)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return &ArchiveRecord{
		ReportDate: day,
		TotalFeed:  report.RawData.TotalFeed,
		TotalMix:   report.RawData.TotalMix,
		Payload:    payload,
		ArchivedAt: archivedAt,
	}, nil
}

// PostgresArchive implements ReportArchive on PostgreSQL. Writes go through a
// queue and are flushed in batches.
type PostgresArchive struct {
	db          *sql.DB
	writeConfig WriteConfig
	insert      func(ctx context.Context, records []*ArchiveRecord) error
	now         func() time.Time

	// Write queue
	writeQueue chan *ArchiveRecord
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
}

// ConnString builds the lib/pq connection string of a database config
func ConnString(dbConfig config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)
}

// NewPostgresArchive connects to PostgreSQL and ensures the archive table
func NewPostgresArchive(dbConfig config.DatabaseConfig, writeConfig WriteConfig) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", ConnString(dbConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, ArchiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive table: %w", err)
	}

	archive := newPostgresArchive(db, writeConfig)

	logger.Info("Connected to report archive",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)
	return archive, nil
}

func newPostgresArchive(db *sql.DB, writeConfig WriteConfig) *PostgresArchive {
	ctx, cancel := context.WithCancel(context.Background())
	a := &PostgresArchive{
		db:          db,
		writeConfig: writeConfig,
		now:         time.Now,
		writeQueue:  make(chan *ArchiveRecord, writeConfig.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
	a.insert = a.insertRecords
	return a
}

// Start starts the write queue processor
func (a *PostgresArchive) Start() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("report archive is already running")
	}
	a.running = true
	a.mu.Unlock()

	logger.Info("Starting report archive writer",
		logger.Int("batch_size", a.writeConfig.BatchSize),
		logger.Duration("interval", a.writeConfig.Interval),
	)

	a.wg.Add(1)
	go a.processWriteQueue()
	return nil
}

// Stop stops the write queue processor and flushes remaining writes
func (a *PostgresArchive) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()

	// Flush anything enqueued after the processor exited
	pending := make([]*ArchiveRecord, 0, len(a.writeQueue))
	for drained := false; !drained; {
		select {
		case rec := <-a.writeQueue:
			pending = append(pending, rec)
		default:
			drained = true
		}
	}
	if len(pending) > 0 {
		a.writeSync(context.Background(), pending)
	}
	archiveQueueDepth.Set(0)

	logger.Info("Report archive writer stopped")
	return nil
}

// Close stops the writer and closes the database connection
func (a *PostgresArchive) Close() error {
	if err := a.Stop(); err != nil {
		return err
	}
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// IsRunning returns whether the writer is running
func (a *PostgresArchive) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// ArchiveReport enqueues a report for archiving
func (a *PostgresArchive) ArchiveReport(ctx context.Context, report *models.DailyReport) error {
	rec, err := NewArchiveRecord(report, a.now().UTC())
	if err != nil {
		archiveWriteErrors.WithLabelValues("invalid_report").Inc()
		return err
	}

	select {
	case a.writeQueue <- rec:
		archiveQueueDepth.Set(float64(len(a.writeQueue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		archiveWriteErrors.WithLabelValues("queue_full").Inc()
		return fmt.Errorf("archive write queue is full")
	}
}

// GetArchivedReport retrieves the archived report of a canonical date
func (a *PostgresArchive) GetArchivedReport(ctx context.Context, date string) (*models.DailyReport, error) {
	day, err := models.ParseReportDate(date)
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = a.db.QueryRowContext(ctx,
		`SELECT payload FROM daily_report_archive WHERE report_date = $1`, day,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query archived report: %w", err)
	}

	var report models.DailyReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archived report: %w", err)
	}
	return &report, nil
}

// ListArchived retrieves archive rows, newest first
func (a *PostgresArchive) ListArchived(ctx context.Context, filter ArchiveFilter) ([]*ArchiveRecord, error) {
	query, args := buildListQuery(filter)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	records := make([]*ArchiveRecord, 0)
	for rows.Next() {
		var rec ArchiveRecord
		if err := rows.Scan(&rec.ReportDate, &rec.TotalFeed, &rec.TotalMix, &rec.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

func buildListQuery(filter ArchiveFilter) (string, []interface{}) {
	query := `
		SELECT report_date, total_feed, total_mix, archived_at
		FROM daily_report_archive
		WHERE 1=1
	`
	args := []interface{}{}
	argIndex := 1

	if !filter.From.IsZero() {
		query += fmt.Sprintf(" AND report_date >= $%d", argIndex)
		args = append(args, filter.From)
		argIndex++
	}

	if !filter.To.IsZero() {
		query += fmt.Sprintf(" AND report_date <= $%d", argIndex)
		args = append(args, filter.To)
		argIndex++
	}

	query += " ORDER BY report_date DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	return query, args
}

func (a *PostgresArchive) processWriteQueue() {
	defer a.wg.Done()

	batch := make([]*ArchiveRecord, 0, a.writeConfig.BatchSize)
	ticker := time.NewTicker(a.writeConfig.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			if len(batch) > 0 {
				a.writeSync(context.Background(), batch)
			}
			return

		case rec := <-a.writeQueue:
			batch = append(batch, rec)
			archiveQueueDepth.Set(float64(len(a.writeQueue)))

			if len(batch) >= a.writeConfig.BatchSize {
				a.writeSync(context.Background(), batch)
				batch = make([]*ArchiveRecord, 0, a.writeConfig.BatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				a.writeSync(context.Background(), batch)
				batch = make([]*ArchiveRecord, 0, a.writeConfig.BatchSize)
			}
		}
	}
}

// writeSync writes records synchronously with retry logic
func (a *PostgresArchive) writeSync(ctx context.Context, records []*ArchiveRecord) {
	start := time.Now()
	records = dedupeByDate(records)

	var err error
	for attempt := 0; attempt < a.writeConfig.MaxRetries; attempt++ {
		err = a.insert(ctx, records)
		if err == nil {
			break
		}

		if attempt < a.writeConfig.MaxRetries-1 {
			delay := a.writeConfig.RetryDelay * time.Duration(1<<uint(attempt)) // Exponential backoff
			logger.Warn("Failed to archive reports, retrying",
				logger.ErrorField(err),
				logger.Int("attempt", attempt+1),
				logger.Int("reports", len(records)),
				logger.Duration("delay", delay),
			)
			time.Sleep(delay)
		}
	}

	archiveWriteLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		archiveWriteErrors.WithLabelValues("write_failed").Inc()
		archiveWriteTotal.WithLabelValues("error").Add(float64(len(records)))
		logger.CountError("archive", "write_failed")
		logger.Error("Failed to archive reports after retries",
			logger.ErrorField(err),
			logger.Int("reports", len(records)),
		)
		return
	}

	archiveWriteTotal.WithLabelValues("success").Add(float64(len(records)))
	logger.Debug("Archived reports",
		logger.Int("count", len(records)),
		logger.Duration("latency", time.Since(start)),
	)
}

// dedupeByDate keeps the last record of each date, in first-seen order
func dedupeByDate(records []*ArchiveRecord) []*ArchiveRecord {
	index := make(map[time.Time]int, len(records))
	out := make([]*ArchiveRecord, 0, len(records))
	for _, rec := range records {
		if i, ok := index[rec.ReportDate]; ok {
			out[i] = rec
			continue
		}
		index[rec.ReportDate] = len(out)
		out = append(out, rec)
	}
	return out
}

func (a *PostgresArchive) insertRecords(ctx context.Context, records []*ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertArchiveSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.ReportDate,
			rec.TotalFeed,
			rec.TotalMix,
			rec.Payload,
			rec.ArchivedAt,
		); err != nil {
			return fmt.Errorf("failed to archive report: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
