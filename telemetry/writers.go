package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"churnserve/db"
)

// Writer receives a profile each time a logger flushes.
type Writer interface {
	Write(ctx context.Context, profile ProfileSummary) error
}

type LocalWriter struct {
	dir string
}

func NewLocalWriter(dir string) *LocalWriter {
	return &LocalWriter{dir: dir}
}

// Write stores the profile as <dir>/<dataset>/profile-<unix nanos>.json.
func (w *LocalWriter) Write(ctx context.Context, profile ProfileSummary) error {
	dir := filepath.Join(w.dir, safeName(profile.Dataset))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	name := "profile-" + strconv.FormatInt(profile.StartedAt.UnixNano(), 10) + ".json"
	return os.WriteFile(filepath.Join(dir, name), payload, 0o644)
}

type SQLiteWriter struct {
	store *db.Store
}

func NewSQLiteWriter(store *db.Store) *SQLiteWriter {
	return &SQLiteWriter{store: store}
}

func (w *SQLiteWriter) Write(ctx context.Context, profile ProfileSummary) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	_, err = w.store.SaveProfile(ctx, db.Profile{
		Dataset:          profile.Dataset,
		SessionID:        profile.SessionID,
		DatasetTimestamp: profile.DatasetTimestamp,
		RecordCount:      profile.RecordCount,
		Payload:          payload,
	})
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func safeName(name string) string {
	if name == "" {
		return "dataset"
	}
	out := []rune(name)
	for i, r := range out {
		if r == '/' || r == '\\' || r == ':' || r == 0 {
			out[i] = '_'
		}
	}
	if s := string(out); s != "." && s != ".." {
		return s
	}
	return "dataset"
}
