// Package gui is the desktop front end: a settings form, a log area fed from
// the mailbox, a status bar and a tray menu.
package gui

import (
	"context"
	"log"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"screen-reader-llm/src/app"
	"screen-reader-llm/src/config"
	"screen-reader-llm/src/hotkey"
	"screen-reader-llm/src/mailbox"
)

const (
	appID = "com.screen-reader-llm"
	title = "Screen Reader LLM"
)

// Controller is the part of *app.Controller the window drives.
type Controller interface {
	StartListening(apiKey, model, combo string) error
	StopListening()
	Rebind(combo string) error
	ClearHistory()
	SetIncludeContext(on bool)
	State() app.SessionState
	Trigger() error
}

type Options struct {
	Controller     Controller
	Mailbox        *mailbox.Mailbox
	APIKey         string
	Model          string
	Hotkey         string
	IncludeContext bool
	// AutoStart starts listening as soon as the window is up when an API key
	// is already configured.
	AutoStart bool
}

type window struct {
	ctl Controller
	box *mailbox.Mailbox
	app fyne.App
	win fyne.Window

	apiKey     *widget.Entry
	model      *widget.SelectEntry
	hotkey     *widget.Entry
	includeCtx *widget.Check
	toggle     *widget.Button
	logLabel   *widget.Label
	logScroll  *container.Scroll
	status     *widget.Label

	logs logBuffer
}

// Run shows the window and blocks until the app quits or ctx is cancelled.
// It must be called from the main goroutine.
func Run(ctx context.Context, opts Options) error {
	a := fyneapp.NewWithID(appID)
	a.SetIcon(appIcon)
	g := newWindow(a, opts)

	pumpCtx, stop := context.WithCancel(ctx)
	defer stop()
	go g.pump(pumpCtx, mailbox.DefaultTick)
	go func() {
		<-pumpCtx.Done()
		if ctx.Err() != nil {
			fyne.Do(a.Quit)
		}
	}()

	if opts.AutoStart && opts.APIKey != "" {
		a.Lifecycle().SetOnStarted(func() { g.onToggle() })
	}
	g.win.ShowAndRun()
	log.Printf("gui: window closed")
	return nil
}

func newWindow(a fyne.App, opts Options) *window {
	g := &window{
		ctl:  opts.Controller,
		box:  opts.Mailbox,
		app:  a,
		win:  a.NewWindow(title),
		logs: logBuffer{max: maxLogLines},
	}

	g.apiKey = widget.NewPasswordEntry()
	g.apiKey.SetPlaceHolder("sk-...")
	g.apiKey.SetText(opts.APIKey)

	// Editable: any model the backend serves may be typed in.
	g.model = widget.NewSelectEntry(config.Models)
	g.model.SetText(initialModel(opts.Model))

	g.hotkey = widget.NewEntry()
	g.hotkey.SetText(opts.Hotkey)
	setHotkey := widget.NewButton("Set Hotkey", g.onSetHotkey)

	g.includeCtx = widget.NewCheck("Include Prior Context", g.ctl.SetIncludeContext)
	g.includeCtx.SetChecked(opts.IncludeContext)

	form := widget.NewForm(
		widget.NewFormItem("API Key", g.apiKey),
		widget.NewFormItem("Model", g.model),
		widget.NewFormItem("Hotkey", container.NewBorder(nil, nil, nil, setHotkey, g.hotkey)),
		widget.NewFormItem("", g.includeCtx),
	)
	settings := widget.NewCard("Settings", "", form)

	g.toggle = widget.NewButton(toggleLabel(app.StateIdle), g.onToggle)
	g.toggle.Importance = widget.HighImportance
	clearBtn := widget.NewButton("Clear History", g.ctl.ClearHistory)
	controls := container.NewHBox(g.toggle, clearBtn)

	g.logLabel = widget.NewLabel("")
	g.logLabel.Wrapping = fyne.TextWrapWord
	g.logScroll = container.NewVScroll(g.logLabel)

	g.status = widget.NewLabel("Ready")

	g.win.SetContent(container.NewBorder(
		container.NewVBox(settings, controls),
		container.NewVBox(widget.NewSeparator(), g.status),
		nil, nil,
		g.logScroll,
	))
	g.win.Resize(fyne.NewSize(640, 520))

	g.setupTray()
	return g
}

func (g *window) setupTray() {
	desk, ok := g.app.(desktop.App)
	if !ok {
		g.win.SetMaster()
		return
	}
	capture := fyne.NewMenuItem("Capture Now", func() {
		if err := g.ctl.Trigger(); err != nil {
			g.box.Log("Error: %v", err)
		}
	})
	show := fyne.NewMenuItem("Show", func() {
		g.win.Show()
		g.win.RequestFocus()
	})
	quit := fyne.NewMenuItem("Quit", g.app.Quit)
	quit.IsQuit = true
	desk.SetSystemTrayMenu(fyne.NewMenu(title, capture, show, fyne.NewMenuItemSeparator(), quit))
	desk.SetSystemTrayIcon(appIcon)

	// Closing the window keeps the app in the tray.
	g.win.SetCloseIntercept(g.win.Hide)
}

// pump hands each drain to the UI goroutine so that DrainAll and every
// widget update happen there.
func (g *window) pump(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fyne.Do(g.drain)
		}
	}
}

func (g *window) drain() {
	evs := g.box.DrainAll()
	if len(evs) == 0 {
		return
	}
	render(g, evs)
	g.refreshToggle()
}

func (g *window) appendLog(line string) {
	g.logs.add(line)
	g.logLabel.SetText(g.logs.String())
	g.logScroll.ScrollToBottom()
}

func (g *window) setStatus(text string) {
	g.status.SetText(text)
}

func (g *window) refreshToggle() {
	g.toggle.SetText(toggleLabel(g.ctl.State()))
}

func (g *window) onToggle() {
	if g.ctl.State() == app.StateIdle {
		if err := g.ctl.StartListening(g.apiKey.Text, g.model.Text, g.hotkey.Text); err != nil {
			log.Printf("gui: start listening failed: %v", err)
			dialog.ShowError(err, g.win)
		}
	} else {
		g.ctl.StopListening()
	}
	g.refreshToggle()
}

func (g *window) onSetHotkey() {
	combo := g.hotkey.Text
	if g.ctl.State() == app.StateIdle {
		normalized, err := hotkey.Normalize(combo)
		if err != nil {
			dialog.ShowError(err, g.win)
			return
		}
		g.hotkey.SetText(normalized)
		g.box.Log("System: Hotkey set to %s", normalized)
		return
	}
	if err := g.ctl.Rebind(combo); err != nil {
		dialog.ShowError(err, g.win)
	}
	g.refreshToggle()
}
