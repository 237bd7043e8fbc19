package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAttenuatesNullability(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want bool
	}{
		{
			name: "plain select",
			sql:  "SELECT id, name FROM users",
			want: false,
		},
		{
			name: "select with where and order",
			sql:  "SELECT id FROM users WHERE id = $1 ORDER BY id LIMIT 10",
			want: false,
		},
		{
			name: "inner join",
			sql:  "SELECT u.id, o.total FROM users u JOIN orders o ON o.user_id = u.id",
			want: false,
		},
		{
			name: "explicit inner join",
			sql:  "SELECT u.id FROM users u INNER JOIN orders o ON o.user_id = u.id",
			want: false,
		},
		{
			name: "subquery in from",
			sql:  "SELECT id FROM (SELECT id FROM users) s",
			want: false,
		},
		{
			name: "left join",
			sql:  "SELECT u.id, o.total FROM users u LEFT JOIN orders o ON o.user_id = u.id",
			want: true,
		},
		{
			name: "right join",
			sql:  "SELECT u.id FROM users u RIGHT JOIN orders o ON o.user_id = u.id",
			want: true,
		},
		{
			name: "full join",
			sql:  "SELECT u.id FROM users u FULL JOIN orders o ON o.user_id = u.id",
			want: true,
		},
		{
			name: "left join nested under inner join",
			sql:  "SELECT u.id FROM users u JOIN (orders o LEFT JOIN items i ON i.order_id = o.id) ON o.user_id = u.id",
			want: true,
		},
		{
			name: "group by",
			sql:  "SELECT user_id FROM orders GROUP BY user_id",
			want: true,
		},
		{
			name: "having",
			sql:  "SELECT user_id FROM orders GROUP BY user_id HAVING count(*) > 1",
			want: true,
		},
		{
			name: "union",
			sql:  "SELECT id FROM users UNION SELECT id FROM admins",
			want: true,
		},
		{
			name: "intersect",
			sql:  "SELECT id FROM users INTERSECT SELECT id FROM admins",
			want: true,
		},
		{
			name: "window function",
			sql:  "SELECT id FROM users WINDOW w AS (ORDER BY id)",
			want: true,
		},
		{
			name: "values list",
			sql:  "VALUES (1, 'a'), (2, 'b')",
			want: true,
		},
		{
			name: "cte",
			sql:  "WITH u AS (SELECT id FROM users) SELECT id FROM u",
			want: true,
		},
		{
			name: "set returning function",
			sql:  "SELECT * FROM generate_series(1, 10)",
			want: true,
		},
		{
			name: "attenuated subquery in from",
			sql:  "SELECT id FROM (SELECT id FROM users GROUP BY id) s",
			want: true,
		},
		{
			name: "insert returning",
			sql:  "INSERT INTO users (name) VALUES ($1) RETURNING id, name",
			want: false,
		},
		{
			name: "update returning",
			sql:  "UPDATE users SET name = $1 WHERE id = $2 RETURNING id",
			want: false,
		},
		{
			name: "update with from",
			sql:  "UPDATE users SET name = o.name FROM orders o WHERE o.user_id = users.id RETURNING users.id",
			want: true,
		},
		{
			name: "delete returning",
			sql:  "DELETE FROM users WHERE id = $1 RETURNING id",
			want: false,
		},
		{
			name: "delete using",
			sql:  "DELETE FROM users USING orders o WHERE o.user_id = users.id RETURNING users.id",
			want: true,
		},
		{
			name: "unparseable",
			sql:  "SELECT FROM WHERE",
			want: true,
		},
		{
			name: "multiple statements",
			sql:  "SELECT 1; SELECT 2",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AttenuatesNullability(tt.sql); got != tt.want {
				t.Errorf("AttenuatesNullability(%q) = %v, want %v", tt.sql, got, tt.want)
			}
		})
	}
}

func TestAnalyzeNullabilityTables(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []TableRef
	}{
		{
			name: "plain select",
			sql:  "SELECT id FROM users",
			want: []TableRef{{Name: "users"}},
		},
		{
			name: "schema qualified",
			sql:  "SELECT id FROM public.users",
			want: []TableRef{{Schema: "public", Name: "users"}},
		},
		{
			name: "inner join",
			sql:  "SELECT u.id, o.total FROM users u JOIN orders o ON o.user_id = u.id",
			want: []TableRef{{Name: "users"}, {Name: "orders"}},
		},
		{
			name: "subquery in from",
			sql:  "SELECT id FROM (SELECT id FROM users) s",
			want: []TableRef{{Name: "users"}},
		},
		{
			name: "insert returning",
			sql:  "INSERT INTO users (name) VALUES ($1) RETURNING id",
			want: []TableRef{{Name: "users"}},
		},
		{
			name: "update returning",
			sql:  "UPDATE users SET name = $1 RETURNING id",
			want: []TableRef{{Name: "users"}},
		},
		{
			name: "delete returning",
			sql:  "DELETE FROM users WHERE id = $1 RETURNING id",
			want: []TableRef{{Name: "users"}},
		},
		{
			name: "attenuated statement collects nothing",
			sql:  "SELECT u.id FROM users u LEFT JOIN orders o ON o.user_id = u.id",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeNullability(tt.sql).Tables
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("AnalyzeNullability(%q).Tables mismatch (-want +got):\n%s", tt.sql, diff)
			}
		})
	}
}
