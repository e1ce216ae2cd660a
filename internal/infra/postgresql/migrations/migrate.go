package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/enrich-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createBatchesTable(),
		createCorrelationEntriesTable(),
		createResultTables(),
	})

	return m.Migrate()
}

func createBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_batches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchModel{}, &repository.PendingModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_batches_status_created ON batches (status, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Migrator().DropTable(&repository.PendingModel{}); err != nil {
				return err
			}
			return tx.Migrator().DropTable(&repository.BatchModel{})
		},
	}
}

func createCorrelationEntriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_correlation_entries",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.CorrelationModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CorrelationModel{})
		},
	}
}

func createResultTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_result_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ResultRowModel{}, &repository.RawPayloadModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_result_rows_batch_order ON result_rows (batch_id, id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Migrator().DropTable(&repository.RawPayloadModel{}); err != nil {
				return err
			}
			return tx.Migrator().DropTable(&repository.ResultRowModel{})
		},
	}
}
