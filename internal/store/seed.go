package store

import (
	"context"
	"fmt"
)

type employee struct {
	name       string
	occupation string
	city       string
	salary     int
	years      int
}

var demoEmployees = []employee{
	{"Alice Moreno", "nurse", "Seattle", 88000, 6},
	{"Bilal Chen", "nurse", "Seattle", 92500, 9},
	{"Carmen Ruiz", "nurse", "Seattle", 79000, 2},
	{"Dana Okafor", "nurse", "Portland", 84000, 7},
	{"Eli Novak", "nurse", "Spokane", 71000, 3},
	{"Farah Haddad", "physician", "Seattle", 245000, 12},
	{"Gus Lindqvist", "physician", "Portland", 231000, 10},
	{"Hana Sato", "pharmacist", "Seattle", 138000, 8},
	{"Ivan Petrov", "pharmacist", "Spokane", 121000, 4},
	{"Jade Williams", "teacher", "Seattle", 74000, 11},
	{"Kofi Mensah", "teacher", "Portland", 68000, 5},
	{"Lena Fischer", "software engineer", "Seattle", 172000, 6},
	{"Marco Rossi", "software engineer", "Seattle", 158000, 3},
	{"Nia Brown", "software engineer", "Portland", 149000, 7},
}

// Seed creates the demo employees table and fills it when empty. It is safe
// to run more than once.
func (s *DataStore) Seed(ctx context.Context) (int, error) {
	create := `CREATE TABLE IF NOT EXISTS employees (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		occupation TEXT NOT NULL,
		city TEXT NOT NULL,
		salary INTEGER NOT NULL,
		years_experience INTEGER NOT NULL
	)`
	if _, err := s.DB.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("creating employees table: %w", err)
	}

	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM employees`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting employees: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	insert := `INSERT INTO employees (id, name, occupation, city, salary, years_experience) VALUES (?, ?, ?, ?, ?, ?)`
	if s.driver == DriverPostgres {
		insert = `INSERT INTO employees (id, name, occupation, city, salary, years_experience) VALUES ($1, $2, $3, $4, $5, $6)`
	}
	for i, e := range demoEmployees {
		if _, err := s.DB.ExecContext(ctx, insert, i+1, e.name, e.occupation, e.city, e.salary, e.years); err != nil {
			return i, fmt.Errorf("inserting %s: %w", e.name, err)
		}
	}
	return len(demoEmployees), nil
}
