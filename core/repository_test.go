package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventstore/pkg/resources"
)

// MockFileStore is a mock of resources.FileStore
type MockFileStore struct {
	mock.Mock
}

func (m *MockFileStore) Path() string {
	return "mock/events.json"
}

func (m *MockFileStore) ReadAll(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockFileStore) WriteAll(ctx context.Context, data []byte) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func ptr(s string) *string {
	return &s
}

func newRequest(title, start, end string) *EventRequest {
	return &EventRequest{Title: ptr(title), StartTime: ptr(start), EndTime: ptr(end)}
}

// newFileRepository seeds a durable file with events and loads a repository from it.
func newFileRepository(t *testing.T, events []Event, opts ...RepositoryOption) (Repository, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.json")

	if events != nil {
		data, err := json.Marshal(events)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o600))
	}

	repo, err := NewRepository(context.Background(), resources.NewFileStore(path), opts...)
	require.NoError(t, err)

	return repo, path
}

func readDurable(t *testing.T, path string) []Event {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var events []Event
	require.NoError(t, json.Unmarshal(data, &events))

	return events
}

func TestNewRepository_Load(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name      string
		data      []byte
		readErr   error
		strict    bool
		wantErr   bool
		wantCount int
	}{
		{
			name:      "missing file starts empty",
			readErr:   fmt.Errorf("failed to read: %w", os.ErrNotExist),
			wantCount: 0,
		},
		{
			name:      "malformed file starts empty",
			data:      []byte("{not json"),
			wantCount: 0,
		},
		{
			name:      "empty file starts empty",
			data:      []byte(""),
			wantCount: 0,
		},
		{
			name:    "malformed file with strict load",
			data:    []byte("{not json"),
			strict:  true,
			wantErr: true,
		},
		{
			name:    "read failure",
			readErr: errors.New("permission denied"),
			wantErr: true,
		},
		{
			name:      "null document",
			data:      []byte("null"),
			wantCount: 0,
		},
		{
			name:      "valid file",
			data:      []byte(`[{"id":"1","title":"a","description":"","start_time":"2024-01-01 09:00:00","end_time":"2024-01-01 10:00:00"}]`),
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := new(MockFileStore)
			store.On("ReadAll", mock.Anything).Return(tt.data, tt.readErr)

			repo, err := NewRepository(ctx, store, WithStrictLoad(tt.strict))

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantCount, repo.Count())
			}

			store.AssertExpectations(t)
		})
	}
}

func TestRepository_CreateEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("missing required fields", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			req  *EventRequest
		}{
			{name: "no title", req: &EventRequest{StartTime: ptr("2024-01-01 09:00:00"), EndTime: ptr("2024-01-01 10:00:00")}},
			{name: "no start_time", req: &EventRequest{Title: ptr("a"), EndTime: ptr("2024-01-01 10:00:00")}},
			{name: "no end_time", req: &EventRequest{Title: ptr("a"), StartTime: ptr("2024-01-01 09:00:00")}},
			{name: "nothing", req: &EventRequest{Description: ptr("only a description")}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				repo, _ := newFileRepository(t, nil)

				_, err := repo.CreateEvent(ctx, tt.req)
				require.ErrorIs(t, err, ErrValidation)
				assert.Equal(t, 0, repo.Count())
			})
		}
	})

	t.Run("auto ids increase from one", func(t *testing.T) {
		t.Parallel()

		repo, path := newFileRepository(t, nil)

		first, err := repo.CreateEvent(ctx, newRequest("first", "2024-01-01 09:00:00", "2024-01-01 10:00:00"))
		require.NoError(t, err)
		assert.Equal(t, "1", first.Id)
		assert.Empty(t, first.Description)

		second, err := repo.CreateEvent(ctx, newRequest("second", "2024-01-02 09:00:00", "2024-01-02 10:00:00"))
		require.NoError(t, err)
		assert.Equal(t, "2", second.Id)

		assert.Equal(t, []Event{*first, *second}, readDurable(t, path))
	})

	t.Run("auto id follows the highest numeric id", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, []Event{
			{Id: "10", Title: "a", StartTime: "2024-01-01 09:00:00", EndTime: "2024-01-01 10:00:00"},
			{Id: "abc", Title: "b", StartTime: "2024-01-01 09:00:00", EndTime: "2024-01-01 10:00:00"},
			{Id: "3", Title: "c", StartTime: "2024-01-01 09:00:00", EndTime: "2024-01-01 10:00:00"},
		})

		event, err := repo.CreateEvent(ctx, newRequest("d", "2024-01-01 09:00:00", "2024-01-01 10:00:00"))
		require.NoError(t, err)
		assert.Equal(t, "11", event.Id)
	})

	t.Run("explicit ids", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			id      string
			wantId  string
			wantErr error
		}{
			{name: "number", id: `42`, wantId: "42"},
			{name: "numeric string", id: `"42"`, wantId: "42"},
			{name: "padded string", id: `" 007 "`, wantId: "7"},
			{name: "not an integer", id: `"abc"`, wantErr: ErrValidation},
			{name: "fraction", id: `4.5`, wantErr: ErrValidation},
			{name: "integral float", id: `6.0`, wantId: "6"},
			{name: "null", id: `null`, wantErr: ErrValidation},
			{name: "existing id", id: `5`, wantErr: ErrConflict},
			{name: "existing id as string", id: `"05"`, wantErr: ErrConflict},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				repo, _ := newFileRepository(t, []Event{
					{Id: "5", Title: "taken", StartTime: "2024-01-01 09:00:00", EndTime: "2024-01-01 10:00:00"},
				})

				req := newRequest("new", "2024-01-01 09:00:00", "2024-01-01 10:00:00")
				req.Id = json.RawMessage(tt.id)

				event, err := repo.CreateEvent(ctx, req)

				if tt.wantErr != nil {
					require.ErrorIs(t, err, tt.wantErr)
					assert.Equal(t, 1, repo.Count())

					return
				}

				require.NoError(t, err)
				assert.Equal(t, tt.wantId, event.Id)
				assert.Equal(t, 2, repo.Count())
			})
		}
	})

	t.Run("whitespace title accepted", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, nil)

		event, err := repo.CreateEvent(ctx, newRequest("   ", "2024-01-01 09:00:00", "2024-01-01 10:00:00"))
		require.NoError(t, err)
		assert.Equal(t, "   ", event.Title)
	})

	t.Run("optional description kept", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, nil)

		req := newRequest("a", "2024-01-01 09:00:00", "2024-01-01 10:00:00")
		req.Description = ptr("notes")

		event, err := repo.CreateEvent(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "notes", event.Description)
	})

	t.Run("end before start is accepted", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, nil)

		_, err := repo.CreateEvent(ctx, newRequest("a", "2024-01-02 09:00:00", "2024-01-01 09:00:00"))
		require.NoError(t, err)
	})

	t.Run("strict times", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, nil, WithStrictTimes(true))

		_, err := repo.CreateEvent(ctx, newRequest("a", "tomorrow", "2024-01-01 09:00:00"))
		require.ErrorIs(t, err, ErrValidation)

		_, err = repo.CreateEvent(ctx, newRequest("a", "2024-01-01 09:00:00", "2024-01-01 10:00:00"))
		require.NoError(t, err)
	})

	t.Run("write failure leaves memory untouched", func(t *testing.T) {
		t.Parallel()

		store := new(MockFileStore)
		store.On("ReadAll", mock.Anything).Return(nil, os.ErrNotExist)
		store.On("WriteAll", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		repo, err := NewRepository(ctx, store)
		require.NoError(t, err)

		_, err = repo.CreateEvent(ctx, newRequest("a", "2024-01-01 09:00:00", "2024-01-01 10:00:00"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, 0, repo.Count())

		store.AssertExpectations(t)
	})
}

func TestRepository_ListEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("sorted by start_time", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, []Event{
			{Id: "1", Title: "later", StartTime: "2024-01-02 10:00:00", EndTime: "2024-01-02 11:00:00"},
			{Id: "2", Title: "earlier", StartTime: "2024-01-01 09:00:00", EndTime: "2024-01-01 10:00:00"},
		})

		first, err := repo.ListEvents(ctx)
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, "2", first[0].Id)
		assert.Equal(t, "1", first[1].Id)

		second, err := repo.ListEvents(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("ties keep stored order", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, []Event{
			{Id: "3", Title: "c", StartTime: "2024-01-01 09:00:00"},
			{Id: "1", Title: "a", StartTime: "2024-01-01 09:00:00"},
			{Id: "2", Title: "b", StartTime: "2023-12-31 09:00:00"},
		})

		events, err := repo.ListEvents(ctx)
		require.NoError(t, err)

		ids := make([]string, 0, len(events))
		for _, event := range events {
			ids = append(ids, event.Id)
		}

		assert.Equal(t, []string{"2", "3", "1"}, ids)
	})

	t.Run("empty collection", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, nil)

		events, err := repo.ListEvents(ctx)
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	t.Run("fractional seconds fail the whole listing", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, []Event{
			{Id: "1", Title: "ok", StartTime: "2024-01-01 09:00:00"},
			{Id: "2", Title: "fraction", StartTime: "2024-01-02 10:00:00.5"},
		})

		events, err := repo.ListEvents(ctx)
		require.ErrorIs(t, err, ErrInvalidStartTime)
		assert.Nil(t, events)
	})

	t.Run("invalid stored start_time fails the whole listing", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, []Event{
			{Id: "1", Title: "ok", StartTime: "2024-01-01 09:00:00"},
			{Id: "2", Title: "broken", StartTime: "01/02/2024"},
		})

		events, err := repo.ListEvents(ctx)
		require.ErrorIs(t, err, ErrInvalidStartTime)
		assert.Nil(t, events)
	})
}

func TestRepository_UpdateEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	seed := []Event{
		{Id: "1", Title: "Standup", Description: "daily", StartTime: "2024-01-01 09:00:00", EndTime: "2024-01-01 09:15:00"},
		{Id: "2", Title: "Retro", Description: "", StartTime: "2024-01-05 15:00:00", EndTime: "2024-01-05 16:00:00"},
	}

	tests := []struct {
		name  string
		id    string
		patch *EventPatch
		want  Event
	}{
		{
			name:  "empty patch changes nothing",
			id:    "1",
			patch: &EventPatch{},
			want:  seed[0],
		},
		{
			name:  "partial patch",
			id:    "2",
			patch: &EventPatch{Title: ptr("Sprint Retro"), EndTime: ptr("2024-01-05 16:30:00")},
			want:  Event{Id: "2", Title: "Sprint Retro", Description: "", StartTime: "2024-01-05 15:00:00", EndTime: "2024-01-05 16:30:00"},
		},
		{
			name:  "empty string overwrites",
			id:    "1",
			patch: &EventPatch{Description: ptr("")},
			want:  Event{Id: "1", Title: "Standup", Description: "", StartTime: "2024-01-01 09:00:00", EndTime: "2024-01-01 09:15:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo, path := newFileRepository(t, seed)

			got, err := repo.UpdateEvent(ctx, tt.id, tt.patch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
			assert.Contains(t, readDurable(t, path), tt.want)
		})
	}

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()

		store := new(MockFileStore)
		data, err := json.Marshal(seed)
		require.NoError(t, err)
		store.On("ReadAll", mock.Anything).Return(data, nil)

		repo, err := NewRepository(ctx, store)
		require.NoError(t, err)

		_, err = repo.UpdateEvent(ctx, "99", &EventPatch{Title: ptr("x")})
		require.ErrorIs(t, err, ErrEventNotFound)
		assert.Equal(t, seed, repo.AllEvents(ctx))

		store.AssertNotCalled(t, "WriteAll", mock.Anything, mock.Anything)
	})

	t.Run("first match only", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, []Event{
			{Id: "7", Title: "one", StartTime: "2024-01-01 09:00:00"},
			{Id: "7", Title: "two", StartTime: "2024-01-01 09:00:00"},
		})

		_, err := repo.UpdateEvent(ctx, "7", &EventPatch{Title: ptr("changed")})
		require.NoError(t, err)

		events := repo.AllEvents(ctx)
		assert.Equal(t, "changed", events[0].Title)
		assert.Equal(t, "two", events[1].Title)
	})

	t.Run("strict times", func(t *testing.T) {
		t.Parallel()

		repo, _ := newFileRepository(t, seed, WithStrictTimes(true))

		_, err := repo.UpdateEvent(ctx, "1", &EventPatch{EndTime: ptr("2024-01-01T09:30:00")})
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestRepository_DeleteEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("removes every match", func(t *testing.T) {
		t.Parallel()

		repo, path := newFileRepository(t, []Event{
			{Id: "1", Title: "a"},
			{Id: "2", Title: "b"},
			{Id: "1", Title: "c"},
		})

		removed, err := repo.DeleteEvent(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)
		assert.Equal(t, []Event{{Id: "2", Title: "b"}}, readDurable(t, path))
	})

	t.Run("unknown id is a no-op that still persists", func(t *testing.T) {
		t.Parallel()

		store := new(MockFileStore)
		store.On("ReadAll", mock.Anything).Return(nil, os.ErrNotExist)
		store.On("WriteAll", mock.Anything, []byte("[]")).Return(nil).Once()

		repo, err := NewRepository(ctx, store)
		require.NoError(t, err)

		removed, err := repo.DeleteEvent(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, 0, removed)

		store.AssertExpectations(t)
	})
}

func TestRepository_SearchEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	repo, _ := newFileRepository(t, []Event{
		{Id: "1", Title: "Lunch", Description: "pre-meeting notes", StartTime: "2024-01-03 12:00:00"},
		{Id: "2", Title: "Dentist", Description: "", StartTime: "2024-01-01 08:00:00"},
		{Id: "3", Title: "Team Meeting", Description: "weekly", StartTime: "2024-01-02 10:00:00"},
	})

	tests := []struct {
		name    string
		query   string
		wantIds []string
		wantErr bool
	}{
		{name: "empty", query: "", wantErr: true},
		{name: "whitespace", query: "  \t ", wantErr: true},
		{name: "title or description, stored order", query: "meet", wantIds: []string{"1", "3"}},
		{name: "case insensitive", query: "  DENTIST ", wantIds: []string{"2"}},
		{name: "no match", query: "party", wantIds: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			events, err := repo.SearchEvents(ctx, tt.query)

			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
				return
			}

			require.NoError(t, err)

			ids := []string{}
			for _, event := range events {
				ids = append(ids, event.Id)
			}

			assert.Equal(t, tt.wantIds, ids)
		})
	}
}

func TestRepository_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.json")

	repo, err := NewRepository(ctx, resources.NewFileStore(path))
	require.NoError(t, err)

	for i := range 5 {
		req := newRequest(fmt.Sprintf("event %d", i), fmt.Sprintf("2024-01-0%d 09:00:00", 5-i), "2024-02-01 09:00:00")
		if i%2 == 0 {
			req.Description = ptr(fmt.Sprintf("description %d", i))
		}

		_, err = repo.CreateEvent(ctx, req)
		require.NoError(t, err)
	}

	require.NoError(t, repo.Close())

	reloaded, err := NewRepository(ctx, resources.NewFileStore(path))
	require.NoError(t, err)

	assert.ElementsMatch(t, repo.AllEvents(ctx), reloaded.AllEvents(ctx))
	assert.Equal(t, 5, reloaded.Count())
}

func TestRepository_Snapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	repo, _ := newFileRepository(t, []Event{
		{Id: "1", Title: "a", StartTime: "2024-01-01 09:00:00", EndTime: "2024-01-01 10:00:00"},
	})

	dir := filepath.Join(t.TempDir(), "snapshots")

	path, err := repo.Snapshot(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, repo.AllEvents(ctx), readDurable(t, path))
}

func TestRepository_Close(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("malformed file survives close without mutations", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "events.json")
		content := []byte(`[{"id":"1","title":"a","description":"","start_time":"2024-01-01 09:00:00","end_time":"2024-01-01 10:00:00"},]`)
		require.NoError(t, os.WriteFile(path, content, 0o600))

		repo, err := NewRepository(ctx, resources.NewFileStore(path))
		require.NoError(t, err)
		assert.Equal(t, 0, repo.Count())

		require.NoError(t, repo.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("untouched collection is not rewritten", func(t *testing.T) {
		t.Parallel()

		store := new(MockFileStore)
		store.On("ReadAll", mock.Anything).Return([]byte(`[]`), nil)

		repo, err := NewRepository(ctx, store)
		require.NoError(t, err)

		_, err = repo.ListEvents(ctx)
		require.NoError(t, err)
		require.NoError(t, repo.Close())

		store.AssertNotCalled(t, "WriteAll", mock.Anything, mock.Anything)
	})

	t.Run("flushes after a mutation", func(t *testing.T) {
		t.Parallel()

		store := new(MockFileStore)
		store.On("ReadAll", mock.Anything).Return(nil, os.ErrNotExist)
		store.On("WriteAll", mock.Anything, mock.Anything).Return(nil).Twice()

		repo, err := NewRepository(ctx, store)
		require.NoError(t, err)

		_, err = repo.CreateEvent(ctx, newRequest("a", "2024-01-01 09:00:00", "2024-01-01 10:00:00"))
		require.NoError(t, err)
		require.NoError(t, repo.Close())

		store.AssertExpectations(t)
	})
}
