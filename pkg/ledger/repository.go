package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound        = errors.New("ledger transaction not found")
	ErrInvalidCallback = errors.New("invalid status callback")
	ErrDuplicate       = errors.New("ledger delivery already recorded")
)

// Repository is the gorm-backed idempotency ledger.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Open connects to the ledger database. Driver is "postgres" (dsn is a
// libpq connection string) or "sqlite" (dsn is a file path).
func Open(driver, dsn string, migrate bool) (*Repository, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported ledger driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	repo := NewRepository(db)
	if migrate {
		if err := repo.AutoMigrate(); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return repo, nil
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&StatusRecord{})
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Exists reports whether a row with the given key and artifact status exists.
func (r *Repository) Exists(ctx context.Context, key Key, status string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&StatusRecord{}).
		Where("ge_number = ? AND event_id = ? AND file_id = ? AND pdf_file_name = ? AND pdf_file_name_status = ?",
			key.EmployeeID, key.EventID, key.FileID, key.ArtifactName, status).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository) Insert(ctx context.Context, rec *StatusRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s/%s/%s/%s", ErrDuplicate, rec.EmployeeID, rec.EventID, rec.FileID, rec.ArtifactName)
	}
	return err
}

// LatestTransactionID returns the most recent transaction id recorded for the
// employee and event, or "" when none exists.
func (r *Repository) LatestTransactionID(ctx context.Context, employeeID, eventID string) (string, error) {
	var rec StatusRecord
	result := r.db.WithContext(ctx).
		Select("transaction_id").
		Where("ge_number = ? AND event_id = ?", employeeID, eventID).
		Order("created_at DESC").Order("id DESC").
		Limit(1).
		Find(&rec)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", nil
	}
	return rec.TransactionID, nil
}

// MarkSent stamps the sent timestamp on every row of the transaction and
// returns the number of rows touched.
func (r *Repository) MarkSent(ctx context.Context, transactionID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&StatusRecord{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"json_sent_date":         at.UTC(),
			"json_generation_status": StatusYes,
		})
	return result.RowsAffected, result.Error
}

// ApplyCallback records a received/rejected decision from a partner system on
// every row of the transaction.
func (r *Repository) ApplyCallback(ctx context.Context, cb Callback) (int64, error) {
	updates, err := callbackUpdates(cb)
	if err != nil {
		return 0, err
	}
	result := r.db.WithContext(ctx).Model(&StatusRecord{}).
		Where("transaction_id = ?", cb.TransactionID).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return result.RowsAffected, nil
}

// FindByTransaction lists the rows of one transaction in insertion order.
func (r *Repository) FindByTransaction(ctx context.Context, transactionID string) ([]StatusRecord, error) {
	var recs []StatusRecord
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&recs).Error
	return recs, err
}

func callbackUpdates(cb Callback) (map[string]interface{}, error) {
	if cb.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction id required", ErrInvalidCallback)
	}
	at := cb.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	switch {
	case cb.Party == PartyDownstream && cb.Decision == DecisionReceived:
		return map[string]interface{}{"hrms_received_status": StatusYes, "hrms_received_date": at}, nil
	case cb.Party == PartyDownstream && cb.Decision == DecisionRejected:
		return map[string]interface{}{
			"hrms_rejected_status": StatusYes,
			"hrms_rejected_date":   at,
			"rejected_comments":    cb.Comments,
		}, nil
	case cb.Party == PartyOffice && cb.Decision == DecisionReceived:
		return map[string]interface{}{"ddo_received_status": StatusYes, "ddo_received_date": at}, nil
	case cb.Party == PartyOffice && cb.Decision == DecisionRejected:
		return map[string]interface{}{
			"ddo_rejected_status": StatusYes,
			"ddo_rejected_date":   at,
			"rejected_comments":   cb.Comments,
		}, nil
	}
	return nil, fmt.Errorf("%w: party %q decision %q", ErrInvalidCallback, cb.Party, cb.Decision)
}
