package models

import (
	"log"

	"github.com/mmdatafocus/settlement_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&FiscalPeriodRecord{},
		&PostedJournal{}, &PostedJournalLine{},
		&CloseRunRecord{}, &CloseTaskResultRecord{},
		&ReconciliationRecord{},
		&SettlementOutboxRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}

	// Entry ids repeat across companies; the old single-column index rejected that.
	if db.Migrator().HasIndex(&PostedJournal{}, "idx_posted_journals_entry_id") {
		if err := db.Migrator().DropIndex(&PostedJournal{}, "idx_posted_journals_entry_id"); err != nil {
			log.Fatal(err)
		}
	}
}
