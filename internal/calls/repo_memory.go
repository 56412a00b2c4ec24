package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Storage useful for tests and local runs.
// It is not intended for production use.
type MemoryRepo struct {
	mu sync.Mutex

	recordings map[string]Recording
	callLogs   map[string]CallLog
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		recordings: map[string]Recording{},
		callLogs:   map[string]CallLog{},
	}
}

func (r *MemoryRepo) SaveRecording(ctx context.Context, rec Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordings[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) GetRecording(ctx context.Context, callUUID string) (Recording, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		out   Recording
		found bool
	)
	for _, rec := range r.recordings {
		if rec.CallUUID != callUUID {
			continue
		}
		if !found || rec.CreatedAt.After(out.CreatedAt) {
			out, found = rec, true
		}
	}
	return out, found, nil
}

func (r *MemoryRepo) ListRecordings(ctx context.Context, start, end time.Time) ([]Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recording, 0, len(r.recordings))
	for _, rec := range r.recordings {
		if !start.IsZero() && rec.CreatedAt.Before(start) {
			continue
		}
		if !end.IsZero() && rec.CreatedAt.After(end) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) SaveCallLog(ctx context.Context, c CallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callLogs[c.ID] = c
	return nil
}

func (r *MemoryRepo) GetCallLog(ctx context.Context, callUUID string) (CallLog, bool, error) {
	return r.findCallLog(func(c CallLog) bool { return c.CallUUID == callUUID })
}

func (r *MemoryRepo) GetCallLogByConversation(ctx context.Context, conversationUUID string) (CallLog, bool, error) {
	return r.findCallLog(func(c CallLog) bool { return c.ConversationUUID == conversationUUID })
}

func (r *MemoryRepo) findCallLog(match func(CallLog) bool) (CallLog, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		out   CallLog
		found bool
	)
	for _, c := range r.callLogs {
		if !match(c) {
			continue
		}
		if !found || c.CreatedAt.After(out.CreatedAt) {
			out, found = c, true
		}
	}
	return out, found, nil
}

func (r *MemoryRepo) UpdateCallLogStatus(ctx context.Context, callUUID, status string, endedAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	updated := false
	for id, c := range r.callLogs {
		if c.CallUUID != callUUID {
			continue
		}
		c.Status = status
		c.EndedAt = endedAt
		r.callLogs[id] = c
		updated = true
	}
	return updated, nil
}

// CallLogs returns a snapshot of every stored call log.
func (r *MemoryRepo) CallLogs() []CallLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallLog, 0, len(r.callLogs))
	for _, c := range r.callLogs {
		out = append(out, c)
	}
	return out
}

// Recordings returns a snapshot of every stored recording.
func (r *MemoryRepo) Recordings() []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recording, 0, len(r.recordings))
	for _, rec := range r.recordings {
		out = append(out, rec)
	}
	return out
}
