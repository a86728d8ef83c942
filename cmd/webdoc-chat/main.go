// Command webdoc-chat is an interactive terminal client for the webdoc chat
// room. It logs in over REST (or reuses a token), joins the room websocket,
// and renders the merged conversation with live updates, reconnects and
// scroll-up history loading.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"webdoc/client"
)

var (
	selfStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	otherStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	tempStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func main() {
	_ = godotenv.Load()

	var (
		serverURL = flag.String("server", envOr("WEBDOC_SERVER_URL", "http://localhost:10610"), "server base URL")
		username  = flag.String("username", os.Getenv("WEBDOC_USERNAME"), "username for login")
		password  = flag.String("password", os.Getenv("WEBDOC_PASSWORD"), "password for login")
		token     = flag.String("token", os.Getenv("WEBDOC_TOKEN"), "access token (skips login)")
	)
	flag.Parse()

	creds, err := resolveCredentials(*serverURL, *username, *password, *token)
	if err != nil {
		log.Fatal(err)
	}

	m := newModel(*serverURL, creds)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if m.chat != nil {
		m.chat.SetOnChange(func() { p.Send(refreshMsg{}) })
	}

	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func resolveCredentials(serverURL, username, password, token string) (client.Credentials, error) {
	if token != "" {
		return client.Credentials{
			AccessToken: token,
			Userinfo:    client.Userinfo{Username: username},
		}, nil
	}
	if username == "" || password == "" {
		return client.Credentials{}, fmt.Errorf("webdoc-chat: provide -token, or -username and -password")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Login(ctx, serverURL, username, password)
}

// refreshMsg tells the UI the client state or message list changed.
type refreshMsg struct{}

type model struct {
	chat  *client.Client
	creds client.Credentials

	vp    viewport.Model
	input textarea.Model
	ready bool
	err   error
}

func newModel(serverURL string, creds client.Credentials) *model {
	input := textarea.New()
	input.Placeholder = "Write a message..."
	input.CharLimit = 2000
	input.SetHeight(2)
	input.ShowLineNumbers = false
	input.Focus()

	m := &model{creds: creds, input: input}

	c, err := client.New(client.Config{
		ServerURL:   serverURL,
		AccessToken: creds.AccessToken,
		ClientID:    creds.Userinfo.ID,
		Username:    creds.Userinfo.Username,
	})
	if err != nil {
		m.err = err
		return m
	}
	m.chat = c
	return m
}

func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.chat != nil {
		cmds = append(cmds, func() tea.Msg {
			_ = m.chat.Connect(context.Background())
			return refreshMsg{}
		})
	}
	return tea.Batch(cmds...)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		inputHeight := m.input.Height() + 1
		statusHeight := 1
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-inputHeight-statusHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - inputHeight - statusHeight
		}
		m.input.SetWidth(msg.Width)
		m.renderMessages()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.chat != nil {
				_ = m.chat.Close()
			}
			return m, tea.Quit
		case tea.KeyEnter:
			if m.chat != nil {
				if content := strings.TrimSpace(m.input.Value()); content != "" {
					if err := m.chat.Send(content); err != nil && err != client.ErrNotConnected {
						m.err = err
					}
				}
			}
			m.input.Reset()
			m.renderMessages()
			return m, nil
		}

	case refreshMsg:
		m.renderMessages()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)
	m.reportViewport()

	return m, tea.Batch(cmds...)
}

// renderMessages rebuilds the viewport content, then either pins the view to
// the bottom or restores the previous scroll position so a history prepend
// does not jump the view.
func (m *model) renderMessages() {
	if !m.ready || m.chat == nil {
		return
	}

	prev := m.currentViewport()
	var b strings.Builder
	for _, msg := range m.chat.Messages() {
		b.WriteString(renderMessage(msg))
		b.WriteByte('\n')
	}
	m.vp.SetContent(b.String())

	if m.chat.FollowBottom() {
		m.vp.GotoBottom()
	} else {
		restored := m.currentViewport().RestoreAfterPrepend(prev)
		m.vp.SetYOffset(restored.Offset)
	}
	m.reportViewport()
}

func renderMessage(msg client.Message) string {
	name := otherStyle.Render(msg.Username)
	if msg.IsSelf {
		name = selfStyle.Render(msg.Username)
	}
	line := fmt.Sprintf("%s %s  %s",
		timeStyle.Render(msg.Timestamp.Local().Format("15:04")),
		name,
		msg.Content,
	)
	if msg.IsTemp {
		line += tempStyle.Render("  (sending)")
	}
	return line
}

// currentViewport maps the bubbles viewport onto the client's scroll model,
// measured in lines rather than pixels.
func (m *model) currentViewport() client.Viewport {
	return client.Viewport{
		Offset:        m.vp.YOffset,
		Height:        m.vp.Height,
		ContentHeight: m.vp.TotalLineCount(),
	}
}

func (m *model) reportViewport() {
	if m.chat == nil || !m.ready {
		return
	}
	m.chat.UpdateViewport(m.currentViewport())
}

func (m *model) View() string {
	if m.err != nil {
		return errorStyle.Render("error: "+m.err.Error()) + "\n"
	}
	if !m.ready {
		return "loading..."
	}

	status := statusStyle.Render(fmt.Sprintf(" %s | %s | enter to send, esc to quit",
		m.creds.Userinfo.Username, m.stateLabel()))

	return m.vp.View() + "\n" + status + "\n" + m.input.View()
}

func (m *model) stateLabel() string {
	if m.chat == nil {
		return "offline"
	}
	return m.chat.State().String()
}
