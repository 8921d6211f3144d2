package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	loginStyle = lipgloss.NewStyle().
			Align(lipgloss.Center).
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF87D7")).
			Bold(true).
			MarginBottom(1)
)

// loginSubmitMsg is sent when the user confirms the login form.
type loginSubmitMsg struct {
	Username string
	Password string
}

type LoginModel struct {
	username   textinput.Model
	password   textinput.Model
	focusIndex int
	pending    bool
	err        error
	width      int
	height     int
}

func NewLoginModel() LoginModel {
	username := textinput.New()
	username.Placeholder = "Username"
	username.Focus()

	password := textinput.New()
	password.Placeholder = "Password"
	password.EchoMode = textinput.EchoPassword

	return LoginModel{
		username: username,
		password: password,
	}
}

func (m LoginModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m LoginModel) Update(msg tea.Msg) (LoginModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab", "shift+tab":
			if msg.String() == "tab" {
				m.focusIndex = (m.focusIndex + 1) % 2
			} else {
				m.focusIndex = (m.focusIndex - 1 + 2) % 2
			}

			if m.focusIndex == 0 {
				m.username.Focus()
				m.password.Blur()
			} else {
				m.username.Blur()
				m.password.Focus()
			}
			return m, nil

		case "enter":
			if m.pending {
				return m, nil
			}
			if m.username.Value() == "" || m.password.Value() == "" {
				m.err = fmt.Errorf("username and password are required")
				return m, nil
			}
			m.pending = true
			m.err = nil
			submit := loginSubmitMsg{Username: m.username.Value(), Password: m.password.Value()}
			return m, func() tea.Msg { return submit }
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	var cmd tea.Cmd
	m.username, cmd = m.username.Update(msg)
	cmds = append(cmds, cmd)
	m.password, cmd = m.password.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// failed re-enables the form after a rejected login.
func (m LoginModel) failed(err error) LoginModel {
	m.pending = false
	m.err = err
	m.password.Reset()
	return m
}

func (m LoginModel) View() string {
	var content string

	content += titleStyle.Render("chatsync login")
	content += "\n\n"

	content += "Username:\n"
	content += m.username.View()
	content += "\n\nPassword:\n"
	content += m.password.View()
	content += "\n\n"

	if m.pending {
		content += helpStyle.Render("Logging in...")
	} else {
		content += helpStyle.Render("Tab to switch fields • Enter to submit")
	}

	if m.err != nil {
		content += "\n" + errorStyle.Render(m.err.Error())
	}

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		loginStyle.Render(content),
	)
}
