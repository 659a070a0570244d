package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"confhub/internal/types"
	"confhub/internal/value"
)

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeValue(v *value.Value) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeValue(s string) (value.Value, error) {
	v, err := value.Parse([]byte(s))
	if err != nil {
		return value.Null(), fmt.Errorf("failed to decode value: %w", err)
	}
	return v, nil
}

func decodeNullValue(s sql.NullString) (*value.Value, error) {
	if !s.Valid {
		return nil, nil
	}
	v, err := decodeValue(s.String)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeOverrides(s string) ([]types.Override, error) {
	overrides := []types.Override{}
	if s == "" {
		return overrides, nil
	}
	if err := json.Unmarshal([]byte(s), &overrides); err != nil {
		return nil, fmt.Errorf("failed to decode overrides: %w", err)
	}
	return overrides, nil
}

func decodeEmails(s string) ([]string, error) {
	emails := []string{}
	if s == "" {
		return emails, nil
	}
	if err := json.Unmarshal([]byte(s), &emails); err != nil {
		return nil, fmt.Errorf("failed to decode member list: %w", err)
	}
	return emails, nil
}

func nonNilEmails(emails []string) []string {
	if emails == nil {
		return []string{}
	}
	return emails
}

func nonNilOverrides(overrides []types.Override) []types.Override {
	if overrides == nil {
		return []types.Override{}
	}
	return overrides
}
