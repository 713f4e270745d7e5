package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trade_log (
	id TEXT PRIMARY KEY,
	time TEXT NOT NULL,
	instrument TEXT NOT NULL,
	direction TEXT NOT NULL,
	lots REAL NOT NULL,
	stop_pips REAL,
	target_pips REAL,
	realized_pnl REAL NOT NULL,
	balance REAL,
	daily_trade_count INTEGER NOT NULL,
	deal_id TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trade_log_time ON trade_log(time);

CREATE TABLE IF NOT EXISTS daily_ledger (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	date TEXT NOT NULL,
	trade_count INTEGER NOT NULL,
	cumulative_pnl REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS seen_deals (
	deal_id TEXT PRIMARY KEY
);
`
