package store

import (
	"os"

	"github.com/highbeam/teamd/internal/fsutil"
	"github.com/highbeam/teamd/internal/model"
)

// idempotencyTable is the create-task.json document: key -> record.
type idempotencyTable map[string]model.IdempotencyRecord

func (s *Store) loadIdempotency(teamID string) (idempotencyTable, string, error) {
	path, err := s.idempotencyFile(teamID)
	if err != nil {
		return nil, "", err
	}
	table := idempotencyTable{}
	if err := fsutil.ReadJSON(path, &table); err != nil && !os.IsNotExist(err) {
		return nil, "", err
	}
	return table, path, nil
}

// idempotentTaskID returns the task id already recorded for key, if any.
func (s *Store) idempotentTaskID(teamID, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	table, _, err := s.loadIdempotency(teamID)
	if err != nil {
		return "", false, err
	}
	rec, ok := table[key]
	return rec.TaskID, ok, nil
}

// recordIdempotency persists key -> taskID. Called only the first time a
// key is seen; a later call with the same key is never reached because
// callers check idempotentTaskID first.
func (s *Store) recordIdempotency(teamID, key, taskID string) error {
	if key == "" {
		return nil
	}
	table, path, err := s.loadIdempotency(teamID)
	if err != nil {
		return err
	}
	table[key] = model.IdempotencyRecord{TaskID: taskID, CreatedAt: s.now()}
	return fsutil.WriteJSONAtomic(path, table)
}
