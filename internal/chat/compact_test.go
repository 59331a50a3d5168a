package chat_test

import (
	"net/http"
	"testing"

	"github.com/picatz/apistyles/internal/chat"
	"github.com/picatz/apistyles/internal/openaitest"
	"github.com/shoenig/test/must"
)

func TestConversation_compaction(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.ChatText("chatcmpl-1", "Rain today."),
		openaitest.ChatText("chatcmpl-2", "The user asked about Paris weather; it rains."),
		openaitest.ChatText("chatcmpl-3", "Pack an umbrella."),
	)
	c := newConversation(t, srv, chat.WithSystemPrompt("Be brief."), chat.WithCompaction(30))

	_, err := c.Send(t.Context(), "Weather in Paris?")
	must.NoError(t, err)
	must.Eq(t, 3, c.Len())

	turn, err := c.Send(t.Context(), "Umbrella?")
	must.NoError(t, err)
	must.Eq(t, "Pack an umbrella.", turn.Text)

	reqs := srv.Requests()
	must.SliceLen(t, 3, reqs)

	summarize := messages(t, reqs[1])
	must.SliceLen(t, 2, summarize)
	must.MapNotContainsKey(t, reqs[1].Body, "tools")
	must.StrContains(t, summarize[0]["content"].(string), "summarizing conversations")
	must.StrContains(t, summarize[1]["content"].(string), "user:\nWeather in Paris?")
	must.StrContains(t, summarize[1]["content"].(string), "assistant:\nRain today.")

	// The old exchange is replaced by one summary message.
	last := messages(t, reqs[2])
	must.SliceLen(t, 3, last)
	must.Eq(t, "Be brief.", last[0]["content"])
	must.Eq(t, chat.SummaryPrefix+"The user asked about Paris weather; it rains.", last[1]["content"])
	must.Eq(t, "Umbrella?", last[2]["content"])
	must.Eq(t, 4, c.Len())

	usage := c.Usage()
	must.Eq(t, int64(3), usage.Requests)
	must.Eq(t, int64(1), usage.Compactions)
	must.Eq(t, int64(1), usage.ItemsCompacted)
	must.Eq(t, int64(20), usage.TokensCompacted)
	must.StrContains(t, usage.String(), "compactions=1")
}

func TestConversation_compactionToolHistory(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.ChatToolCalls("chatcmpl-1", parisCall),
		openaitest.ChatText("chatcmpl-2", "Rainy."),
		openaitest.ChatText("chatcmpl-3", "Asked for Paris weather, got rain."),
		openaitest.ChatText("chatcmpl-4", "Yes."),
	)
	c := newConversation(t, srv, chat.WithCompaction(1))

	_, err := c.Send(t.Context(), "Weather?")
	must.NoError(t, err)
	must.Eq(t, 4, c.Len())

	_, err = c.Send(t.Context(), "Umbrella?")
	must.NoError(t, err)

	text := messages(t, srv.Requests()[2])[1]["content"].(string)
	must.StrContains(t, text, `called get_weather({"city":"Paris"})`)
	must.StrContains(t, text, "tool:\n")

	// Without a system prompt the summary is the first message.
	must.SliceLen(t, 2, messages(t, srv.Last()))
	must.Eq(t, int64(3), c.Usage().ItemsCompacted)
}

func TestConversation_compactionFailureKeepsHistory(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.ChatText("chatcmpl-1", "Rain today."),
		openaitest.Error(http.StatusInternalServerError, "summarizer down"),
		openaitest.ChatText("chatcmpl-2", "Pack an umbrella."),
	)
	c := newConversation(t, srv, chat.WithCompaction(30))

	_, err := c.Send(t.Context(), "Weather in Paris?")
	must.NoError(t, err)

	_, err = c.Send(t.Context(), "Umbrella?")
	must.NoError(t, err)

	must.SliceLen(t, 3, messages(t, srv.Last()))
	must.Eq(t, int64(0), c.Usage().Compactions)
	must.Eq(t, 4, c.Len())
}

func TestConversation_compactionDisabled(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.ChatText("chatcmpl-1", "one"),
		openaitest.ChatText("chatcmpl-2", "two"),
	)
	c := newConversation(t, srv)

	for _, text := range []string{"first", "second"} {
		_, err := c.Send(t.Context(), text)
		must.NoError(t, err)
	}
	must.SliceLen(t, 2, srv.Requests())
	must.Eq(t, int64(0), c.Usage().Compactions)
}
