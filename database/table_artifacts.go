package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/types"
	"github.com/t2bot/patient-media-repo/util"
)

const (
	StatePending = "pending"
	StateReady   = "ready"
)

type DbArtifact struct {
	types.MediaArtifact
	State      string
	ReservedTs int64
}

const artifactColumns = "id, content_hash, state, original_filename, byte_size, stored_size, declared_mime, content_type, kind, width, height, duration_ms, video_codec, storage_path, thumbnail_path, derivatives, ref_count, created_ts, reserved_ts"

const insertReservation = "INSERT INTO media_artifacts (" + artifactColumns + ") VALUES ($1, $2, 'pending', $3, $4, 0, $5, $6, $7, $8, $9, $10, '', $11, '', '{}', 1, $12, $13) ON CONFLICT DO NOTHING RETURNING id;"
const selectArtifactByHash = "SELECT " + artifactColumns + " FROM media_artifacts WHERE content_hash = $1;"
const selectArtifactById = "SELECT " + artifactColumns + " FROM media_artifacts WHERE id = $1;"
const incrementRefCount = "UPDATE media_artifacts SET ref_count = ref_count + 1 WHERE id = $1 AND state = 'ready' RETURNING " + artifactColumns + ";"
const decrementRefCount = "UPDATE media_artifacts SET ref_count = ref_count - 1 WHERE id = $1 AND state = 'ready' AND ref_count > 0 RETURNING ref_count;"
const completeReservation = "UPDATE media_artifacts SET state = 'ready', stored_size = $2, content_type = $3, width = $4, height = $5, duration_ms = $6, video_codec = $7, storage_path = $8, thumbnail_path = $9, derivatives = $10 WHERE id = $1 AND state = 'pending';"
const refreshPending = "UPDATE media_artifacts SET reserved_ts = $2 WHERE id = $1 AND state = 'pending';"
const deletePending = "DELETE FROM media_artifacts WHERE id = $1 AND state = 'pending';"
const deleteStalePending = "DELETE FROM media_artifacts WHERE content_hash = $1 AND state = 'pending' AND reserved_ts < $2;"
const deleteUnreferenced = "DELETE FROM media_artifacts WHERE id = $1 AND state = 'ready' AND ref_count <= 0 RETURNING " + artifactColumns + ";"

type artifactsTableStatements struct {
	insertReservation    *sql.Stmt
	selectArtifactByHash *sql.Stmt
	selectArtifactById   *sql.Stmt
	incrementRefCount    *sql.Stmt
	decrementRefCount    *sql.Stmt
	completeReservation  *sql.Stmt
	refreshPending       *sql.Stmt
	deletePending        *sql.Stmt
	deleteStalePending   *sql.Stmt
	deleteUnreferenced   *sql.Stmt
}

type artifactsTableWithContext struct {
	statements *artifactsTableStatements
	ctx        rcontext.RequestContext
}

func prepareArtifactsTables(db *sql.DB) (*artifactsTableStatements, error) {
	var err error
	var stmts = &artifactsTableStatements{}

	if stmts.insertReservation, err = db.Prepare(insertReservation); err != nil {
		return nil, errors.New("error preparing insertReservation: " + err.Error())
	}
	if stmts.selectArtifactByHash, err = db.Prepare(selectArtifactByHash); err != nil {
		return nil, errors.New("error preparing selectArtifactByHash: " + err.Error())
	}
	if stmts.selectArtifactById, err = db.Prepare(selectArtifactById); err != nil {
		return nil, errors.New("error preparing selectArtifactById: " + err.Error())
	}
	if stmts.incrementRefCount, err = db.Prepare(incrementRefCount); err != nil {
		return nil, errors.New("error preparing incrementRefCount: " + err.Error())
	}
	if stmts.decrementRefCount, err = db.Prepare(decrementRefCount); err != nil {
		return nil, errors.New("error preparing decrementRefCount: " + err.Error())
	}
	if stmts.completeReservation, err = db.Prepare(completeReservation); err != nil {
		return nil, errors.New("error preparing completeReservation: " + err.Error())
	}
	if stmts.refreshPending, err = db.Prepare(refreshPending); err != nil {
		return nil, errors.New("error preparing refreshPending: " + err.Error())
	}
	if stmts.deletePending, err = db.Prepare(deletePending); err != nil {
		return nil, errors.New("error preparing deletePending: " + err.Error())
	}
	if stmts.deleteStalePending, err = db.Prepare(deleteStalePending); err != nil {
		return nil, errors.New("error preparing deleteStalePending: " + err.Error())
	}
	if stmts.deleteUnreferenced, err = db.Prepare(deleteUnreferenced); err != nil {
		return nil, errors.New("error preparing deleteUnreferenced: " + err.Error())
	}

	return stmts, nil
}

func (s *artifactsTableStatements) Prepare(ctx rcontext.RequestContext) *artifactsTableWithContext {
	return &artifactsTableWithContext{
		statements: s,
		ctx:        ctx,
	}
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanArtifact(row scannable) (*DbArtifact, error) {
	val := &DbArtifact{}
	var kind string
	var durationMs int64
	var createdTs int64
	derivatives := StringMap{}
	err := row.Scan(&val.Id, &val.ContentHash, &val.State, &val.OriginalFilename, &val.ByteSize, &val.StoredSize, &val.DeclaredMime, &val.ContentType, &kind, &val.Width, &val.Height, &durationMs, &val.VideoCodec, &val.StoragePath, &val.ThumbnailPath, &derivatives, &val.RefCount, &createdTs, &val.ReservedTs)
	if err != nil {
		return nil, err
	}
	val.Kind = common.Kind(kind)
	val.Duration = time.Duration(durationMs) * time.Millisecond
	val.CreatedAt = util.FromMillis(createdTs)
	val.Derivatives = derivatives
	return val, nil
}

func maybeArtifact(val *DbArtifact, err error) (*DbArtifact, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return val, err
}

// TryReserve inserts a pending row for the candidate. It returns false when a
// row with the same id or content hash already exists.
func (s *artifactsTableWithContext) TryReserve(m *types.MediaArtifact, reservedTs int64) (bool, error) {
	row := s.statements.insertReservation.QueryRowContext(s.ctx, m.Id, m.ContentHash, m.OriginalFilename, m.ByteSize, m.DeclaredMime, m.ContentType, string(m.Kind), m.Width, m.Height, m.Duration.Milliseconds(), m.StoragePath, m.CreatedAt.UnixMilli(), reservedTs)
	id := ""
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *artifactsTableWithContext) GetByHash(hash string) (*DbArtifact, error) {
	return maybeArtifact(scanArtifact(s.statements.selectArtifactByHash.QueryRowContext(s.ctx, hash)))
}

func (s *artifactsTableWithContext) GetById(id string) (*DbArtifact, error) {
	return maybeArtifact(scanArtifact(s.statements.selectArtifactById.QueryRowContext(s.ctx, id)))
}

// IncrementRefCount adds a reference to a ready artifact, returning nil if
// there is no ready artifact with that id.
func (s *artifactsTableWithContext) IncrementRefCount(id string) (*DbArtifact, error) {
	return maybeArtifact(scanArtifact(s.statements.incrementRefCount.QueryRowContext(s.ctx, id)))
}

// DecrementRefCount returns the new count, or -1 if nothing was released.
func (s *artifactsTableWithContext) DecrementRefCount(id string) (int64, error) {
	row := s.statements.decrementRefCount.QueryRowContext(s.ctx, id)
	var count int64
	err := row.Scan(&count)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	return count, err
}

func (s *artifactsTableWithContext) Complete(m *types.MediaArtifact) (bool, error) {
	res, err := s.statements.completeReservation.ExecContext(s.ctx, m.Id, m.StoredSize, m.ContentType, m.Width, m.Height, m.Duration.Milliseconds(), m.VideoCodec, m.StoragePath, m.ThumbnailPath, StringMap(m.Derivatives))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RefreshPending moves a pending row's reservation time forward, returning
// false if the row is no longer pending.
func (s *artifactsTableWithContext) RefreshPending(id string, reservedTs int64) (bool, error) {
	res, err := s.statements.refreshPending.ExecContext(s.ctx, id, reservedTs)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *artifactsTableWithContext) DeletePending(id string) error {
	_, err := s.statements.deletePending.ExecContext(s.ctx, id)
	return err
}

func (s *artifactsTableWithContext) DeleteStalePending(hash string, olderThanTs int64) (bool, error) {
	res, err := s.statements.deleteStalePending.ExecContext(s.ctx, hash, olderThanTs)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteIfUnreferenced removes a ready artifact with no references and
// returns what was removed, or nil if nothing was.
func (s *artifactsTableWithContext) DeleteIfUnreferenced(id string) (*DbArtifact, error) {
	return maybeArtifact(scanArtifact(s.statements.deleteUnreferenced.QueryRowContext(s.ctx, id)))
}
