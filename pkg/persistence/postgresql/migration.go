package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE production_orders (
				order_id VARCHAR(64) PRIMARY KEY,
				customer TEXT NOT NULL,
				product TEXT NOT NULL,
				quantity INTEGER NOT NULL CHECK (quantity > 0),
				priority_score DOUBLE PRECISION NOT NULL,
				due_date DATE,
				stock_model TEXT NOT NULL DEFAULT '',
				flags JSONB NOT NULL DEFAULT '[]',
				period_index INTEGER NOT NULL,
				period_code CHAR(2) NOT NULL,
				current_department VARCHAR(255) NOT NULL,
				state VARCHAR(32) NOT NULL CHECK (state IN ('intake', 'queued', 'in_progress', 'reworked', 'completed', 'cancelled')),
				enqueued_at TIMESTAMP WITH TIME ZONE NOT NULL,
				rework_count INTEGER NOT NULL DEFAULT 0,
				urgency VARCHAR(16) NOT NULL DEFAULT '',
				needs_information BOOLEAN NOT NULL DEFAULT false,
				removal_reason TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_production_orders_state ON production_orders(state);
			CREATE INDEX idx_production_orders_department ON production_orders(current_department);
		`,
		2: `
			CREATE TABLE stage_transitions (
				id BIGSERIAL PRIMARY KEY,
				order_id VARCHAR(64) NOT NULL REFERENCES production_orders(order_id) ON DELETE CASCADE,
				from_department VARCHAR(255) NOT NULL,
				to_department VARCHAR(255) NOT NULL DEFAULT '',
				kind VARCHAR(16) NOT NULL CHECK (kind IN ('forward', 'skip', 'rework', 'complete', 'cancel')),
				at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_stage_transitions_order_id ON stage_transitions(order_id, id);
		`,
	}
}
