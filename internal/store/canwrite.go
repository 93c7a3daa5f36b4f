package store

import (
	"errors"
	"strings"

	"github.com/highbeam/teamd/internal/fsutil"
)

// CanWriteResult is the structured decision returned by CanWrite. It is
// never an error: every input, including an invalid path, yields a
// populated decision.
type CanWriteResult struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// CanWrite reports whether agentID currently holds an active lease over a
// task whose resources cover path. path is validated against the
// workspace root with the same safe-join guard used for on-disk layout.
func (s *Store) CanWrite(teamID, agentID, path string) (CanWriteResult, error) {
	if !ValidID(teamID) || !ValidID(agentID) {
		return CanWriteResult{Allow: false, Reason: "invalid_path"}, nil
	}

	rel := normalizeResource(path)
	if _, err := fsutil.SafeJoin(s.root, rel); err != nil {
		if errors.Is(err, fsutil.ErrPathTraversal) || errors.Is(err, fsutil.ErrSymlinkEscape) {
			return CanWriteResult{Allow: false, Reason: "path_traversal_denied"}, nil
		}
		return CanWriteResult{Allow: false, Reason: "invalid_path"}, nil
	}

	tasks, err := s.ListTasks(teamID, "")
	if err != nil {
		return CanWriteResult{}, err
	}
	now := s.now()
	for _, task := range tasks {
		if task.Lease == nil || task.Lease.Holder != agentID {
			continue
		}
		if task.Lease.Expired(now) {
			continue
		}
		for _, resource := range task.Resources {
			if resourceMatches(resource, rel) {
				return CanWriteResult{Allow: true, Reason: "lease_active_for_resource"}, nil
			}
		}
	}
	return CanWriteResult{Allow: false, Reason: "no_active_lease_for_path"}, nil
}

// resourceMatches reports whether resource covers path: equal, or a
// strict parent directory of it.
func resourceMatches(resource, path string) bool {
	if resource == path {
		return true
	}
	return strings.HasPrefix(path, resource+"/")
}
