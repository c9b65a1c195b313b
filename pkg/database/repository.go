package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Repository defines the storage operations shared by every entity
type Repository[T any] interface {
	Get(ctx context.Context, id int64) (*T, error)
	Create(ctx context.Context, entity *T) (*T, error)
	CreateBatch(ctx context.Context, entities []*T) error
	FindWhere(ctx context.Context, order string, limit int, query string, args ...any) ([]*T, error)
	DeleteWhere(ctx context.Context, query string, args ...any) (int64, error)
}

// GormRepository implements Repository using Gorm
type GormRepository[T any] struct {
	db        *gorm.DB
	batchSize int
}

func NewGormRepository[T any](db *gorm.DB) *GormRepository[T] {
	return &GormRepository[T]{db: db, batchSize: 500}
}

// DB returns the underlying database connection for specialized queries
func (repository *GormRepository[T]) DB() *gorm.DB {
	return repository.db
}

func (repository *GormRepository[T]) Get(ctx context.Context, id int64) (*T, error) {
	var entity T
	result := repository.db.WithContext(ctx).First(&entity, id)
	if result.Error != nil {
		return nil, result.Error
	}
	return &entity, nil
}

func (repository *GormRepository[T]) Create(ctx context.Context, entity *T) (*T, error) {
	result := repository.db.WithContext(ctx).Create(entity)
	if result.Error != nil {
		return nil, result.Error
	}
	return entity, nil
}

// CreateBatch inserts entities in chunks within one transaction.
func (repository *GormRepository[T]) CreateBatch(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	return repository.db.WithContext(ctx).CreateInBatches(entities, repository.batchSize).Error
}

// FindWhere lists the entities matching query. A limit <= 0 means no limit.
func (repository *GormRepository[T]) FindWhere(ctx context.Context, order string, limit int, query string, args ...any) ([]*T, error) {
	var entities []*T
	tx := repository.db.WithContext(ctx).Where(query, args...)
	if order != "" {
		tx = tx.Order(order)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return entities, nil
}

// DeleteWhere removes the entities matching query and reports how many were removed.
func (repository *GormRepository[T]) DeleteWhere(ctx context.Context, query string, args ...any) (int64, error) {
	var entity T
	result := repository.db.WithContext(ctx).Where(query, args...).Delete(&entity)
	return result.RowsAffected, result.Error
}
