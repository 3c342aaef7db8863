package logger

import "testing"

func TestOperationFromSQL(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{sql: "SELECT 1", want: "SELECT"},
		{sql: "  update usage_tracking set storage_used = storage_used + 1", want: "UPDATE"},
		{sql: "INSERT INTO subscriptions (id) VALUES (1) ON CONFLICT (user_id) DO UPDATE SET plan_id = EXCLUDED.plan_id", want: "UPSERT"},
		{sql: "INSERT INTO usage_tracking (id) VALUES (1) ON CONFLICT DO NOTHING", want: "INSERT"},
		{sql: "", want: "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := operationFromSQL(tt.sql); got != tt.want {
			t.Fatalf("operationFromSQL(%q) = %s, want %s", tt.sql, got, tt.want)
		}
	}
}
