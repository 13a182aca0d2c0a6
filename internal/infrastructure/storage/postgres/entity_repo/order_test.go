package entity_repo

import "testing"

func TestOrderClause(t *testing.T) {
	tests := []struct {
		orderBy string
		want    string
	}{
		{"name", "name ASC"},
		{"-name", "name DESC"},
		{"created_at", "created_at ASC"},
		{"-updated_at", "updated_at DESC"},
		{"", "name ASC"},
		{"fields", "name ASC"},               // unknown column falls back
		{"-id; DROP TABLE x", "name DESC"},   // never interpolates raw input
	}

	for _, tt := range tests {
		if got := orderClause(tt.orderBy); got != tt.want {
			t.Errorf("orderClause(%q) = %q, want %q", tt.orderBy, got, tt.want)
		}
	}
}
