package records

import (
	"context"
	"time"

	"github.com/MrEthical07/goMFA/method"
	"github.com/cockroachdb/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type registeredMethodRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	MemberID  string    `gorm:"not null;size:191;uniqueIndex:idx_mfa_member_method"`
	Method    string    `gorm:"not null;size:64;uniqueIndex:idx_mfa_member_method"`
	Data      []byte    `gorm:"type:bytea"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (registeredMethodRow) TableName() string { return "mfa_registered_methods" }

type memberPreferenceRow struct {
	MemberID      string `gorm:"primaryKey;size:191"`
	DefaultMethod string `gorm:"not null;size:64"`
	UpdatedAt     time.Time
}

func (memberPreferenceRow) TableName() string { return "mfa_member_preferences" }

// Gorm is a relational Repository. The (member, method) pair is backed by a
// unique index.
type Gorm struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenPostgres connects to Postgres with duplicate-key errors translated so
// Create can report ErrDuplicate.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, backendError(err, "open postgres")
	}
	return db, nil
}

// NewGorm wraps db. Call Migrate once before use.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db, now: time.Now}
}

// Migrate creates or updates the tables.
func (g *Gorm) Migrate(ctx context.Context) error {
	if err := g.db.WithContext(ctx).AutoMigrate(&registeredMethodRow{}, &memberPreferenceRow{}); err != nil {
		return backendError(err, "migrate registered methods")
	}
	return nil
}

func (g *Gorm) List(ctx context.Context, memberID string) ([]method.RegisteredMethod, error) {
	var rows []registeredMethodRow
	err := g.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at ASC, method ASC").
		Find(&rows).Error
	if err != nil {
		return nil, backendError(err, "list registered methods")
	}

	out := make([]method.RegisteredMethod, len(rows))
	for i, row := range rows {
		out[i] = row.toMethod()
	}
	return out, nil
}

func (g *Gorm) Get(ctx context.Context, memberID, segment string) (*method.RegisteredMethod, error) {
	var row registeredMethodRow
	err := g.db.WithContext(ctx).
		Where("member_id = ? AND method = ?", memberID, segment).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, backendError(err, "get registered method")
	}
	rm := row.toMethod()
	return &rm, nil
}

func (g *Gorm) Create(ctx context.Context, rm *method.RegisteredMethod) error {
	if err := validateRecord(rm); err != nil {
		return err
	}
	if rm.ID == "" {
		return errors.New("registered method has no id")
	}
	if rm.CreatedAt.IsZero() {
		rm.CreatedAt = g.now().UTC()
	}
	rm.UpdatedAt = rm.CreatedAt

	row := registeredMethodRow{
		ID:        rm.ID,
		MemberID:  rm.MemberID,
		Method:    rm.Method,
		Data:      rm.Data,
		CreatedAt: rm.CreatedAt,
		UpdatedAt: rm.UpdatedAt,
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return backendError(err, "create registered method")
	}
	return nil
}

func (g *Gorm) UpdateData(ctx context.Context, memberID, segment string, data []byte) error {
	res := g.db.WithContext(ctx).
		Model(&registeredMethodRow{}).
		Where("member_id = ? AND method = ?", memberID, segment).
		Updates(map[string]any{"data": data, "updated_at": g.now().UTC()})
	if res.Error != nil {
		return backendError(res.Error, "update registered method")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) SwapData(ctx context.Context, memberID, segment string, old, data []byte) error {
	q := g.db.WithContext(ctx).
		Model(&registeredMethodRow{}).
		Where("member_id = ? AND method = ?", memberID, segment)
	if len(old) == 0 {
		q = q.Where("data IS NULL OR length(data) = 0")
	} else {
		q = q.Where("data = ?", old)
	}
	res := q.Updates(map[string]any{"data": data, "updated_at": g.now().UTC()})
	if res.Error != nil {
		return backendError(res.Error, "swap registered method data")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	err := g.db.WithContext(ctx).
		Model(&registeredMethodRow{}).
		Where("member_id = ? AND method = ?", memberID, segment).
		Count(&count).Error
	if err != nil {
		return backendError(err, "swap registered method data")
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (g *Gorm) Delete(ctx context.Context, memberID, segment string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("member_id = ? AND method = ?", memberID, segment).Delete(&registeredMethodRow{})
		if res.Error != nil {
			return backendError(res.Error, "delete registered method")
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		err := tx.Where("member_id = ? AND default_method = ?", memberID, segment).
			Delete(&memberPreferenceRow{}).Error
		if err != nil {
			return backendError(err, "clear default method")
		}
		return nil
	})
}

func (g *Gorm) DeleteAll(ctx context.Context, memberID string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("member_id = ?", memberID).Delete(&registeredMethodRow{}).Error; err != nil {
			return backendError(err, "delete member methods")
		}
		if err := tx.Where("member_id = ?", memberID).Delete(&memberPreferenceRow{}).Error; err != nil {
			return backendError(err, "delete member preference")
		}
		return nil
	})
}

func (g *Gorm) DefaultMethod(ctx context.Context, memberID string) (string, error) {
	var row memberPreferenceRow
	err := g.db.WithContext(ctx).Where("member_id = ?", memberID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", backendError(err, "read default method")
	}
	return row.DefaultMethod, nil
}

func (g *Gorm) SetDefaultMethod(ctx context.Context, memberID, segment string) error {
	if segment == "" {
		if err := g.db.WithContext(ctx).Where("member_id = ?", memberID).Delete(&memberPreferenceRow{}).Error; err != nil {
			return backendError(err, "clear default method")
		}
		return nil
	}

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&registeredMethodRow{}).
			Where("member_id = ? AND method = ?", memberID, segment).
			Count(&count).Error
		if err != nil {
			return backendError(err, "check registered method")
		}
		if count == 0 {
			return ErrNotFound
		}

		row := memberPreferenceRow{MemberID: memberID, DefaultMethod: segment, UpdatedAt: g.now().UTC()}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "member_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"default_method", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return backendError(err, "set default method")
		}
		return nil
	})
}

func (row registeredMethodRow) toMethod() method.RegisteredMethod {
	return method.RegisteredMethod{
		ID:        row.ID,
		MemberID:  row.MemberID,
		Method:    row.Method,
		Data:      row.Data,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
