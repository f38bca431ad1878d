package persistence

import (
	"testing"
	"time"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/repository"
	"github.com/steerdev/steer/internal/domain/valueobject"
)

func sampleSession(id string) *repository.Session {
	u := entity.NewUserMessage("t0", "", []entity.UserContent{entity.TextContent{Text: "hi"}})
	a := entity.NewAssistantMessage("t0", u.ID, []entity.AssistantContent{
		entity.ToolCallContent{ID: "c1", Name: "ls", Parameters: map[string]any{}},
	})
	tm := entity.NewToolMessage("t0", a.ID, "c1", valueobject.FileListResult{Entries: []string{"x"}})

	return &repository.Session{
		ID:            id,
		Workspace:     "/work",
		SystemPrompt:  "be nice",
		Messages:      []entity.Message{u, a, tm},
		ApprovedTools: []string{"ls"},
	}
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemorySessionRepository()
	if err := repo.Save(sampleSession("s1")); err != nil {
		t.Fatal(err)
	}

	loaded, err := repo.FindByID("s1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Workspace != "/work" || loaded.SystemPrompt != "be nice" {
		t.Error("session fields lost")
	}
	if len(loaded.Messages) != 3 {
		t.Fatalf("messages = %d", len(loaded.Messages))
	}
	if loaded.Messages[1].Meta().ParentID != loaded.Messages[0].Meta().ID {
		t.Error("parent links must survive")
	}
}

func TestMemoryRepositoryLatestAndList(t *testing.T) {
	repo := NewMemorySessionRepository()
	_ = repo.Save(sampleSession("old"))
	time.Sleep(5 * time.Millisecond)
	_ = repo.Save(sampleSession("new"))

	latest, err := repo.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != "new" {
		t.Errorf("latest = %s", latest.ID)
	}

	summaries, err := repo.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 || summaries[0].ID != "new" {
		t.Errorf("list = %+v", summaries)
	}
	if summaries[0].Messages != 3 {
		t.Errorf("message count = %d", summaries[0].Messages)
	}
}

func TestMemoryRepositoryDelete(t *testing.T) {
	repo := NewMemorySessionRepository()
	_ = repo.Save(sampleSession("s1"))

	if err := repo.Delete("s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.FindByID("s1"); err != repository.ErrSessionNotFound {
		t.Errorf("expected not-found, got %v", err)
	}
	if err := repo.Delete("s1"); err != repository.ErrSessionNotFound {
		t.Errorf("double delete should report not-found, got %v", err)
	}
}

// The row mapping preserves the message envelope across encode/decode,
// covering what the gorm repository stores.
func TestSessionModelRoundTrip(t *testing.T) {
	session := sampleSession("s9")
	session.Metadata = map[string]string{"origin": "test"}
	session.ToolConfig = map[string]any{"bash": map[string]any{"enabled": true}}
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()

	model, err := toModel(session)
	if err != nil {
		t.Fatal(err)
	}
	back, err := toDomain(model)
	if err != nil {
		t.Fatal(err)
	}

	if back.ID != "s9" || back.Metadata["origin"] != "test" {
		t.Error("metadata lost in row mapping")
	}
	if len(back.Messages) != 3 {
		t.Fatalf("messages = %d", len(back.Messages))
	}
	if back.Messages[2].(*entity.ToolMessage).ToolUseID != "c1" {
		t.Error("tool linkage lost in row mapping")
	}
	if len(back.ApprovedTools) != 1 || back.ApprovedTools[0] != "ls" {
		t.Error("approved tools lost")
	}
}
