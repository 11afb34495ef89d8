package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-display/internal/config"
	domain "github.com/oshokin/alarm-display/internal/domain/alarm"
)

// Snapshot is the persisted alarm state.
type Snapshot struct {
	// State is the last authoritative alarm state.
	State domain.State
	// UpdatedAt is when the state was applied.
	UpdatedAt time.Time
}

// Repository defines persistence operations for the alarm state.
type Repository interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
}

// FileRepository persists the alarm state to a JSON file on disk.
// The document is produced and consumed via protobuf JSON (protojson) of a
// structpb.Struct, which keeps the file a plain JSON object.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

const (
	// fieldState is the JSON key of the state label.
	fieldState = "state"
	// fieldUpdatedAt is the JSON key of the update time.
	fieldUpdatedAt = "updated_at"
)

var (
	// ErrNotFound is returned when the state file does not exist yet.
	ErrNotFound = errors.New("state not found")
	// errMissingField is returned when the state document lacks a field.
	errMissingField = errors.New("missing field")
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the state from disk.
func (r *FileRepository) Load(_ context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	return fromStruct(&document)
}

// Save writes the state to disk using JSON representation.
func (r *FileRepository) Save(_ context.Context, snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	document, err := toStruct(snapshot)
	if err != nil {
		return err
	}

	marshalOptions := protojson.MarshalOptions{
		EmitUnpopulated: true,
		Multiline:       true,
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	// Write to a sibling file first so a power cut never leaves a truncated document.
	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

// fromStruct converts the JSON document into a Snapshot.
func fromStruct(document *structpb.Struct) (*Snapshot, error) {
	fields := document.GetFields()

	label, ok := fields[fieldState]
	if !ok {
		return nil, fmt.Errorf("decode state file: %w: %s", errMissingField, fieldState)
	}

	state, err := domain.ParseState(label.GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	snapshot := &Snapshot{State: state}

	if ts := fields[fieldUpdatedAt].GetStringValue(); ts != "" {
		snapshot.UpdatedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("decode state file: %w", err)
		}
	}

	return snapshot, nil
}

// toStruct converts a Snapshot into the JSON document.
func toStruct(snapshot *Snapshot) (*structpb.Struct, error) {
	values := map[string]any{
		fieldState: snapshot.State.String(),
	}

	if !snapshot.UpdatedAt.IsZero() {
		values[fieldUpdatedAt] = snapshot.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}

	document, err := structpb.NewStruct(values)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	return document, nil
}
