package repository

var schema = []string{
	`CREATE TABLE IF NOT EXISTS catalog_uploads (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		vendor_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		storage_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		products_extracted INTEGER NOT NULL DEFAULT 0,
		images_extracted INTEGER NOT NULL DEFAULT 0,
		extracted_text TEXT NOT NULL DEFAULT '',
		extraction_method TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_uploads_session_id ON catalog_uploads (session_id)`,
	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		upload_id UUID NOT NULL REFERENCES catalog_uploads (id) ON DELETE CASCADE,
		vendor_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price NUMERIC(12, 2) NOT NULL,
		sku TEXT NOT NULL,
		category TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		image_urls TEXT[] NOT NULL DEFAULT '{}',
		embedding REAL[],
		source_document TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_created_at ON products (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_products_upload_id ON products (upload_id)`,
}
