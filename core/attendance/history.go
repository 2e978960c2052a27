package attendance

import "context"

// History iterates over all versions of a session in ascending version
// order. Version headers are loaded up front (the set is small and finite);
// each version's record set is fetched lazily on Next. Reset rewinds the
// iterator for another pass.
type History struct {
	repo     Repository
	sessions []Session
	idx      int
}

// Len returns the total number of versions.
func (h *History) Len() int { return len(h.sessions) }

// Next returns the next version, or nil once the history is exhausted.
func (h *History) Next(ctx context.Context) (*SessionVersion, error) {
	if h.idx >= len(h.sessions) {
		return nil, nil
	}
	sess := h.sessions[h.idx]
	records, err := h.repo.QueryRecordDetails(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	h.idx++
	return &SessionVersion{Session: sess, Records: records}, nil
}

// Reset rewinds the iterator to the first version.
func (h *History) Reset() { h.idx = 0 }
