// Package repl is an interactive terminal session over either API style.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/picatz/apistyles/internal/storage"
	"golang.org/x/term"
)

var (
	styleBold    = lipgloss.NewStyle().Bold(true)
	styleFaint   = lipgloss.NewStyle().Faint(true)
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Session encapsulates the state of an interactive session: terminal I/O,
// the conversation it drives and the commands it understands.
type Session struct {
	Conversation Conversation

	// Transcript, when set, backs the history command.
	Transcript *storage.Transcript

	Terminal   *term.Terminal
	OutWriter  *bufio.Writer
	TermWidth  int
	TermHeight int
	Commands   []Command

	// MarkdownStyle is the glamour style replies are rendered with.
	MarkdownStyle string

	// Stream writes replies as they arrive when the conversation is a
	// Streamer. Streamed replies are not rendered as markdown.
	Stream bool

	// HTTPClient fetches #url: references.
	HTTPClient *http.Client
}

// NewSession creates a session reading from r and writing to w.
//
// When w is a terminal it is put in raw mode, and the returned function
// restores it. It must be called on exit.
func NewSession(conv Conversation, transcript *storage.Transcript, r io.Reader, w io.Writer) (*Session, func(), error) {
	var (
		restoreFunc = func() {}
		termWidth   = 80
		termHeight  = 24
		style       = "notty"
	)

	if stdout, ok := w.(*os.File); ok && term.IsTerminal(int(stdout.Fd())) {
		fd := int(stdout.Fd())

		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set terminal to raw mode: %w", err)
		}

		restoreFunc = func() {
			if err := term.Restore(fd, oldState); err != nil {
				fmt.Fprintf(os.Stderr, "\nfailed to restore terminal: %s\n", err)
			}
		}

		termWidth, termHeight, err = term.GetSize(fd)
		if err != nil {
			restoreFunc()
			return nil, nil, fmt.Errorf("failed to get terminal size while creating new session: %w", err)
		}
		style = "dark"
	}

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{r, w}, "")
	t.SetSize(termWidth, termHeight)

	s := &Session{
		Conversation:  conv,
		Transcript:    transcript,
		Terminal:      t,
		OutWriter:     bufio.NewWriter(t),
		TermWidth:     termWidth,
		TermHeight:    termHeight,
		Commands:      builtinCommands,
		MarkdownStyle: style,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
	}

	t.AutoCompleteCallback = s.autoComplete

	return s, restoreFunc, nil
}

// ShowHelp lists the commands.
func (s *Session) ShowHelp() {
	s.OutWriter.WriteString(styleBold.Render("Commands") + " " + styleFaint.Render("(tab complete)") + "\n\n")

	for _, cmd := range s.Commands {
		s.OutWriter.WriteString("- " + styleFaint.Render(cmd.Name) + ": " + cmd.Description + "\n")
	}

	s.OutWriter.WriteString("\nUse '" + styleFaint.Render("#file:path") + "' to include file content in a message.\n")
	s.OutWriter.WriteString("Use '" + styleFaint.Render("#url:address") + "' to include the content of a web page.\n\n")
	s.OutWriter.Flush()
}

// Run reads and answers input until exit, end of input, or ctx is done.
func (s *Session) Run(ctx context.Context) {
	s.clearScreen()

	s.OutWriter.WriteString(styleBold.Render(s.Conversation.Style().Title()) + " " +
		styleFaint.Render("("+s.Conversation.Style().String()+")") + "\n\n")
	s.ShowHelp()

	for ctx.Err() == nil {
		done, err := s.RunOnce(ctx)
		if err != nil {
			s.OutWriter.WriteString(styleWarning.Render("Error:") + " " + err.Error() + "\n")
			s.OutWriter.Flush()
		}
		if done {
			return
		}
	}
}

// RunOnce handles one line of input. It reports whether the session is done;
// an error with done false is not fatal.
func (s *Session) RunOnce(ctx context.Context) (bool, error) {
	s.OutWriter.WriteString("‣ ")
	s.OutWriter.Flush()

	input, err := s.Terminal.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return true, fmt.Errorf("failed to read input: %w", err)
	}

	trimmed := strings.TrimSpace(input)
	switch {
	case trimmed == "":
		return false, nil
	case trimmed == "exit":
		return true, nil
	}

	if s.runCommand(ctx, trimmed) {
		return false, nil
	}

	text, err := addFiles(input)
	if err != nil {
		return false, err
	}

	text, err = addURLs(ctx, s.HTTPClient, text)
	if err != nil {
		return false, err
	}

	if st, ok := s.Conversation.(Streamer); ok && s.Stream {
		_, err := st.Stream(ctx, text, flushWriter{s.OutWriter})
		if err != nil {
			return false, fmt.Errorf("request failed: %w", err)
		}
		return false, nil
	}

	reply, err := s.Conversation.Send(ctx, text)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}

	rendered, err := renderMarkdown(strings.TrimRight(reply, "\n"), s.MarkdownStyle, s.TermWidth)
	if err != nil {
		rendered = reply + "\n"
	}

	s.OutWriter.WriteString(rendered)
	s.OutWriter.Flush()
	return false, nil
}

func (s *Session) runCommand(ctx context.Context, input string) bool {
	defer s.OutWriter.Flush()

	for _, cmd := range s.Commands {
		if cmd.Run == nil {
			continue
		}
		switch {
		case cmd.Matches == nil:
			if input == cmd.Name {
				cmd.Run(ctx, s, input)
				return true
			}
		case cmd.Matches(input):
			cmd.Run(ctx, s, input)
			return true
		}
	}
	return false
}

// addFiles replaces every #file:path token with the file's contents.
func addFiles(input string) (string, error) {
	if !strings.Contains(input, "#file:") {
		return input, nil
	}

	for _, field := range strings.Fields(input) {
		path, ok := strings.CutPrefix(field, "#file:")
		if !ok {
			continue
		}

		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read file %q: %w", path, err)
		}

		input = strings.Replace(input, field, path+":\n"+string(b), 1)
	}
	return input, nil
}

// maxURLBytes bounds how much of a #url: response is included.
const maxURLBytes = 1 << 20

// addURLs replaces every #url:address token with the body fetched from it.
// Addresses without a scheme are fetched over https.
func addURLs(ctx context.Context, client *http.Client, input string) (string, error) {
	if !strings.Contains(input, "#url:") {
		return input, nil
	}
	if client == nil {
		client = http.DefaultClient
	}

	for _, field := range strings.Fields(input) {
		url, ok := strings.CutPrefix(field, "#url:")
		if !ok {
			continue
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "https://" + url
		}

		body, err := fetch(ctx, client, url)
		if err != nil {
			return "", err
		}

		input = strings.Replace(input, field, url+":\n"+body, 1)
	}
	return input, nil
}

func fetch(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL %q: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("failed to fetch URL %q: %s", url, resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxURLBytes))
	if err != nil {
		return "", fmt.Errorf("error reading response body from URL %q: %w", url, err)
	}
	return string(b), nil
}

// flushWriter flushes after every write so streamed text shows up at once.
type flushWriter struct {
	w *bufio.Writer
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.w.Flush()
}

func (s *Session) clearScreen() {
	s.OutWriter.WriteString("\033[2J")
	s.OutWriter.WriteString("\033[H")
	s.OutWriter.Flush()
}

// autoComplete completes command names on tab.
func (s *Session) autoComplete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' || line == "" {
		return line, pos, false
	}

	for _, cmd := range s.Commands {
		if strings.HasPrefix(cmd.Name, line) {
			return cmd.Name, len(cmd.Name), true
		}
	}
	return line, pos, false
}
