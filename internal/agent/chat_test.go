package agent_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/starford/ansuz/internal/agent"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/query"
	"github.com/starford/ansuz/internal/testutil"
)

func chatEngine(t *testing.T) *query.Engine {
	t.Helper()
	db := testutil.TestDB(t)

	row := index.NoteRow{
		Slug: "meadows", FilePath: "meadows.md", Title: "Thinking in Systems",
		SourceType: models.SourceBook, SourceTitle: "Thinking in Systems",
		SourceAuthor: "Donella Meadows", Tags: []string{},
		Checksum: "x", UpdatedAt: time.Now().UTC(),
	}
	chunks := []models.Chunk{
		{Ordinal: 0, Content: "A stock is the foundation of any system."},
		{Ordinal: 1, Content: "Feedback loops keep stocks in balance."},
	}
	vectors := [][]float32{
		testutil.FakeVector("A stock is the foundation of any system."),
		testutil.FakeVector("Feedback loops keep stocks in balance."),
	}
	if err := db.ReplaceNote(row, nil, chunks, vectors); err != nil {
		t.Fatal(err)
	}

	rows, err := db.EmbeddedChunks()
	if err != nil {
		t.Fatal(err)
	}
	vi, err := index.BuildVectorIndex(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	return query.New(db, testutil.FakeEmbedder{}, func() *index.VectorIndex { return vi })
}

func TestChatAnswerWithCitations(t *testing.T) {
	var prompt string
	llm := &fakeLLM{script: func(call int, messages []llms.MessageContent) *llms.ContentResponse {
		for _, part := range messages[len(messages)-1].Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt = text.Text
			}
		}
		return answerResp("Stocks are foundations [1].")
	}}

	chat := agent.NewChat(chatEngine(t), llm)
	res, err := chat.Answer(context.Background(), "what is a stock?")
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != "Stocks are foundations [1]." {
		t.Fatalf("answer = %q", res.Answer)
	}
	if len(res.Citations) != 1 {
		t.Fatalf("chunks from the same note should collapse to one citation, got %v", res.Citations)
	}
	c := res.Citations[0]
	if c.Slug != "meadows" || c.SourceAuthor != "Donella Meadows" {
		t.Fatalf("citation = %+v", c)
	}

	if !strings.Contains(prompt, "[1] Note: Thinking in Systems") {
		t.Fatalf("prompt missing numbered excerpt header:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Question: what is a stock?") {
		t.Fatalf("prompt missing question:\n%s", prompt)
	}
	if llm.calls != 1 {
		t.Fatalf("grounded Q&A must make exactly one model call, made %d", llm.calls)
	}
}

func TestChatEmptyIndex(t *testing.T) {
	db := testutil.TestDB(t)
	vi, err := index.BuildVectorIndex(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	eng := query.New(db, testutil.FakeEmbedder{}, func() *index.VectorIndex { return vi })

	llm := &fakeLLM{script: func(int, []llms.MessageContent) *llms.ContentResponse {
		t.Fatal("model must not be called with nothing retrieved")
		return nil
	}}
	chat := agent.NewChat(eng, llm)

	res, err := chat.Answer(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer == "" || len(res.Citations) != 0 {
		t.Fatalf("result = %+v", res)
	}
}
