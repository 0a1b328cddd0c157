package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Camera is a capture source owned by a user.
type Camera struct {
	ID        string
	UserID    string
	Name      string
	URL       string
	CreatedAt time.Time
}

// CameraSettings holds the processing settings bound to a camera. The
// threshold is kept on the form's 0-100 scale; the streaming boundary
// normalizes it before it reaches a session.
type CameraSettings struct {
	CameraID            string
	URL                 string
	ModelName           string
	ConfidenceThreshold int
}

// ModelNone is the settings sentinel for "no annotation".
const ModelNone = "None"

// AddCamera inserts a camera together with its default settings row in one
// transaction and returns the new camera.
func (s *Store) AddCamera(ctx context.Context, userID, name, url string) (*Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cam := &Camera{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		URL:       url,
		CreatedAt: time.Now(),
	}

	tx, err := s.db.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cameras (id, user_id, name, url, created_at) VALUES (?, ?, ?, ?, ?)`,
		cam.ID, cam.UserID, cam.Name, cam.URL, cam.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add camera: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cameras_settings (camera_id) VALUES (?)`,
		cam.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add camera settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit camera: %w", err)
	}

	return cam, nil
}

// GetCameraByName retrieves a user's camera by name. Returns nil when not found.
func (s *Store) GetCameraByName(ctx context.Context, userID, name string) (*Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, user_id, name, url, created_at FROM cameras WHERE user_id = ? AND name = ?`

	var cam Camera
	err := s.db.GetDB().QueryRowContext(ctx, query, userID, name).Scan(
		&cam.ID, &cam.UserID, &cam.Name, &cam.URL, &cam.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}

	return &cam, nil
}

// ListCameras lists a user's cameras ordered by creation time.
func (s *Store) ListCameras(ctx context.Context, userID string) ([]Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, user_id, name, url, created_at FROM cameras WHERE user_id = ? ORDER BY created_at`

	rows, err := s.db.GetDB().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []Camera
	for rows.Next() {
		var cam Camera
		if err := rows.Scan(&cam.ID, &cam.UserID, &cam.Name, &cam.URL, &cam.CreatedAt); err != nil {
			return nil, err
		}
		cameras = append(cameras, cam)
	}

	return cameras, rows.Err()
}

// CheckUserCamera reports whether the camera belongs to the user.
func (s *Store) CheckUserCamera(ctx context.Context, userID, cameraID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id FROM cameras WHERE id = ? AND user_id = ?`

	var id string
	err := s.db.GetDB().QueryRowContext(ctx, query, cameraID, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check camera ownership: %w", err)
	}

	return true, nil
}

// UpdateCamera updates a camera's name and URL.
func (s *Store) UpdateCamera(ctx context.Context, cameraID, name, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE cameras SET name = ?, url = ? WHERE id = ?`
	res, err := s.db.GetDB().ExecContext(ctx, query, name, url, cameraID)
	if err != nil {
		return fmt.Errorf("failed to update camera: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("camera not found: %s", cameraID)
	}

	return nil
}

// DeleteCamera deletes a camera; the settings row cascades.
func (s *Store) DeleteCamera(ctx context.Context, cameraID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `DELETE FROM cameras WHERE id = ?`
	res, err := s.db.GetDB().ExecContext(ctx, query, cameraID)
	if err != nil {
		return fmt.Errorf("failed to delete camera: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("camera not found: %s", cameraID)
	}

	return nil
}

// GetCameraSettings returns the camera's URL joined with its processing
// settings. Returns nil when the camera does not exist.
func (s *Store) GetCameraSettings(ctx context.Context, cameraID string) (*CameraSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT cameras.id, cameras.url, model_name, confidence_threshold
		FROM cameras JOIN cameras_settings ON cameras.id = camera_id
		WHERE cameras.id = ?
	`

	var settings CameraSettings
	err := s.db.GetDB().QueryRowContext(ctx, query, cameraID).Scan(
		&settings.CameraID, &settings.URL, &settings.ModelName, &settings.ConfidenceThreshold,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera settings: %w", err)
	}

	return &settings, nil
}

// SetCameraSettings updates the camera's model name and confidence threshold.
func (s *Store) SetCameraSettings(ctx context.Context, cameraID, modelName string, threshold int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE cameras_settings SET model_name = ?, confidence_threshold = ? WHERE camera_id = ?`
	res, err := s.db.GetDB().ExecContext(ctx, query, modelName, threshold, cameraID)
	if err != nil {
		return fmt.Errorf("failed to set camera settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("camera not found: %s", cameraID)
	}

	return nil
}
