package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"
)

// Supabase implements Store over PostgREST tables of a Supabase project.
// The PostgREST builder takes no context; ctx is only checked before each call.
type Supabase struct {
	client *supabase.Client
}

// NewSupabase creates a Store for the project at url using the service key.
func NewSupabase(url, key string) (*Supabase, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Supabase{client: client}, nil
}

func (s *Supabase) Get(ctx context.Context, table, key string) (*Row, error) {
	spec, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, _, err := s.client.From(table).
		Select("*", "", false).
		Eq(spec.keyCol, key).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}

	var records []map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	rec := records[0]

	row := &Row{Key: key, Payload: rec[spec.payloadCol]}
	if spec.hasParams {
		row.Params = rec["query_params"]
	}
	var expires string
	if err := json.Unmarshal(rec["expires_at"], &expires); err != nil {
		return nil, fmt.Errorf("decode %s.expires_at: %w", table, err)
	}
	if row.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Supabase) Upsert(ctx context.Context, table string, row Row) error {
	spec, err := lookupTable(table)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value := map[string]any{
		spec.keyCol:     row.Key,
		spec.payloadCol: row.Payload,
		"expires_at":    row.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if spec.hasParams {
		params := row.Params
		if len(params) == 0 {
			params = json.RawMessage("{}")
		}
		value["query_params"] = params
	}

	if _, _, err := s.client.From(table).Upsert(value, spec.keyCol, "minimal", "").Execute(); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

func (s *Supabase) Delete(ctx context.Context, table, key string) error {
	spec, err := lookupTable(table)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := s.client.From(table).Delete("minimal", "").Eq(spec.keyCol, key).Execute(); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}
