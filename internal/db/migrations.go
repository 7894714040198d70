package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'profile_type') THEN
			CREATE TYPE profile_type AS ENUM ('client', 'contractor');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'contract_status') THEN
			CREATE TYPE contract_status AS ENUM ('new', 'in_progress', 'terminated');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id BIGSERIAL PRIMARY KEY,
		first_name VARCHAR(255) NOT NULL,
		last_name VARCHAR(255) NOT NULL,
		profession VARCHAR(255) NOT NULL,
		balance NUMERIC(12,2) NOT NULL DEFAULT 0,
		type profile_type,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id BIGSERIAL PRIMARY KEY,
		terms TEXT NOT NULL,
		status contract_status,
		client_id BIGINT REFERENCES profiles(id),
		contractor_id BIGINT REFERENCES profiles(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id BIGSERIAL PRIMARY KEY,
		description TEXT NOT NULL,
		price NUMERIC(12,2) NOT NULL CHECK (price > 0),
		paid BOOLEAN DEFAULT FALSE,
		payment_date TIMESTAMPTZ,
		contract_id BIGINT NOT NULL REFERENCES contracts(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_client_id ON contracts (client_id);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_contractor_id ON contracts (contractor_id);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts (status);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_contract_id ON jobs (contract_id);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_unpaid ON jobs (contract_id) WHERE paid IS NOT TRUE;`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_payment_date ON jobs (payment_date) WHERE paid = TRUE;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
