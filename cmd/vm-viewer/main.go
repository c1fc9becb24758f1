package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"go.creack.net/threebit/cli"
	"go.creack.net/threebit/disasm"
	"go.creack.net/threebit/vm"
)

// Message colors.
var msgColors = map[vm.MessageType]tcell.Color{
	vm.MsgOutput:  tcell.ColorGreen,
	vm.MsgJump:    tcell.ColorSteelBlue,
	vm.MsgHalt:    tcell.ColorYellow,
	vm.MsgTrap:    tcell.ColorRed,
	vm.MsgTimeout: tcell.ColorOrange,
	vm.MsgDebug:   tcell.ColorGray,
}

type snapshot struct {
	pc     int
	state  string
	output string
	code   string
}

type Game struct {
	app *tview.Application

	root *tview.Flex

	listingView *tview.Table
	stateView   *tview.TextView
	outputView  *tview.TextView
	codeView    *tview.TextView
	logsView    *tview.TextView

	name    string
	listing *disasm.Listing

	mu       sync.Mutex // Guards the fields below.
	m        *vm.Machine
	paused   bool
	nextStep bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewGame(ctx context.Context, name string, m *vm.Machine) *Game {
	app := tview.NewApplication().EnableMouse(true)

	newTextView := func(title string) *tview.TextView {
		tv := tview.NewTextView().SetDynamicColors(true)
		tv.SetTitle(title).SetBorder(true)
		return tv
	}

	listingView := tview.NewTable().SetBorders(false)
	listingView.SetTitle("Program").SetBorder(true)

	stateView := newTextView("State")
	outputView := newTextView("Output")
	outputView.SetWrap(true)
	codeView := newTextView("Code")
	logsView := newTextView("Logs")
	logsView.ScrollToEnd()

	rightPane := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(stateView, 8, 0, false).
		AddItem(outputView, 0, 1, false).
		AddItem(codeView, 0, 1, false).
		AddItem(logsView, 0, 3, false)

	flex := tview.NewFlex().
		AddItem(listingView, 0, 2, true).
		AddItem(rightPane, 0, 1, false)

	ctx, cancel := context.WithCancel(ctx)

	g := &Game{
		app: app,

		root: flex,

		listingView: listingView,
		stateView:   stateView,
		outputView:  outputView,
		codeView:    codeView,
		logsView:    logsView,

		name:    name,
		listing: disasm.Disasm(m.Code),

		m:      m,
		paused: true,

		ctx:    ctx,
		cancel: cancel,
	}
	g.drawListing()
	return g
}

func (g *Game) Stop() {
	g.app.Stop()
	g.cancel()
}

// debugf logs a viewer event in the log pane. Dropped when the pane is behind.
func (g *Game) debugf(format string, args ...any) {
	select {
	case g.m.Messages <- vm.NewMessage(vm.MsgDebug, g.m.PC, g.m.Steps, fmt.Sprintf(format, args...)):
	default:
	}
}

func (g *Game) Init() {
	f := func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC, tcell.KeyEscape:
			g.Stop()
			return nil
		}
		switch event.Rune() {
		case 'n':
			g.mu.Lock()
			g.nextStep = true
			g.mu.Unlock()
			return nil
		case ' ':
			g.mu.Lock()
			g.paused = !g.paused
			msg := "resumed"
			if g.paused {
				msg = "paused"
			}
			g.debugf("%s at step %d", msg, g.m.Steps)
			g.mu.Unlock()
			return nil
		case 'r':
			g.mu.Lock()
			g.m.Reset()
			g.paused = true
			g.mu.Unlock()
			return nil
		case 'q':
			g.Stop()
			return nil
		}
		return event
	}
	g.root.SetInputCapture(f)

	go logMessages(g.ctx, g.m.Messages, g.logsView)
}

// logMessages writes the machine events to the log pane until ctx is done.
// It writes to the view directly, never through the application goroutine;
// the next tick redraws the pane.
func logMessages(ctx context.Context, msgs <-chan vm.Message, logsView *tview.TextView) {
	for {
		select {
		case msg := <-msgs:
			if msg.Type == vm.MsgReset {
				logsView.Clear()
				continue
			}
			colorCode := "[" + tcell.ColorDefault.String() + ":::]"
			if c, ok := msgColors[msg.Type]; ok {
				colorCode = "[" + c.String() + ":::]"
			}
			fmt.Fprintf(logsView, "%s[%d] %04d %s %s[:::]\n", colorCode, msg.Step, msg.PC, msg.Type, strings.TrimSuffix(msg.Message, "\n"))
		case <-ctx.Done():
			return
		}
	}
}

// Update steps the machine when running or when a single step was requested.
func (g *Game) Update() snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	step := g.nextStep || !g.paused
	g.nextStep = false
	if step && g.m.Status == vm.StatusRunning {
		if _, err := g.m.StepContext(g.ctx); err != nil {
			g.paused = true
			g.debugf("stopped: %s", err)
		}
	}
	return g.snapshot()
}

func (g *Game) snapshot() snapshot {
	state := &strings.Builder{}
	runState := "running"
	if g.paused {
		runState = "paused"
	}
	fmt.Fprintf(state, "%s [%s]\n", g.name, runState)
	fmt.Fprintf(state, "Status: %s, Steps: %d\n", g.m.Status, g.m.Steps)
	fmt.Fprintf(state, "A: %d\nB: %d\nC: %d\nPC: %d\n", g.m.Registers.A, g.m.Registers.B, g.m.Registers.C, g.m.PC)

	return snapshot{
		pc:     g.m.PC,
		state:  state.String(),
		output: cli.FormatOutput(g.m.Output),
		code:   disasm.HexDump(g.m.Code, g.m.PC),
	}
}

func (g *Game) drawListing() {
	g.listingView.Clear()
	for i, line := range g.listing.Lines {
		cell := tview.NewTableCell(tview.Escape(line.PrettyPrint()))
		if !line.Valid {
			cell.SetTextColor(tcell.ColorRed)
		}
		g.listingView.SetCell(i, 0, cell)
	}
}

func (g *Game) Draw(s snapshot) {
	for i, line := range g.listing.Lines {
		cell := g.listingView.GetCell(i, 0)
		if line.PC == s.pc {
			cell.SetAttributes(tcell.AttrReverse)
		} else {
			cell.SetAttributes(tcell.AttrNone)
		}
	}
	g.stateView.SetText(s.state)
	g.outputView.SetText(s.output)

	g.codeView.Clear()
	_, _ = tview.ANSIWriter(g.codeView).Write([]byte(s.code))
}

func main() {
	interval := flag.Duration("interval", 100*time.Millisecond, "delay between steps when running")
	flag.Usage = func() { cli.Usage(flag.CommandLine, "<.toml|.3b|example:name>") }

	s, err := cli.ParseConfig()
	if err != nil {
		flag.Usage()
		log.Fatalf("Failed to parse CLI config: %s.", err)
	}
	// The terminal belongs to the viewer.
	if s.Log.File == "" {
		s.Log.Verbosity = -4
	}
	cli.InitLog(s.Log)

	m := vm.New(s.Config())
	m.Messages = make(chan vm.Message, 256)

	g := NewGame(context.Background(), s.Image.Header.Name, m)
	g.Init()
	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		defer func() {
			if e := recover(); e != nil {
				g.app.Stop()
				log.Printf("Recovered from panic: %v", e)
				debug.PrintStack()
			}
		}()
	loop:
		snap := g.Update()
		g.app.QueueUpdateDraw(func() {
			g.Draw(snap)
		})

		select {
		case <-ticker.C:
		case <-g.ctx.Done():
			return
		}
		goto loop
	}()

	if err := g.app.SetRoot(g.root, true).SetFocus(g.root).Run(); err != nil {
		panic(err)
	}
}
