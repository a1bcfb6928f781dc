package types

import "time"

// AccountSnapshot is the cached view of one connected account.
// History is ordered most-recent-first.
type AccountSnapshot struct {
	Address     string
	Balance     uint64
	History     []TxRecord
	RefreshedAt time.Time
}

// Clone returns a deep copy of the snapshot.
func (s AccountSnapshot) Clone() AccountSnapshot {
	c := s
	if s.History != nil {
		c.History = make([]TxRecord, len(s.History))
		for i, r := range s.History {
			c.History[i] = r.Clone()
		}
	}
	return c
}

// Find returns the history entry with the given hash.
func (s AccountSnapshot) Find(hash string) (TxRecord, bool) {
	for _, r := range s.History {
		if r.Hash == hash {
			return r, true
		}
	}
	return TxRecord{}, false
}
