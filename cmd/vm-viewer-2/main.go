package main

import (
	"context"
	"fmt"
	"image/color"
	"log"
	"strings"

	"github.com/hajimehoshi/bitmapfont/v3"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"

	"go.creack.net/threebit/cli"
	"go.creack.net/threebit/disasm"
	"go.creack.net/threebit/vm"
)

var fontFace = text.NewGoXFace(bitmapfont.Face)

const initialScreenWidth, initialScreenHeight = 1024, 768

var (
	colorText    = color.RGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
	colorCurrent = color.RGBA{R: 0xff, G: 0xd7, A: 0xff}
	colorError   = color.RGBA{R: 0xff, G: 0x40, B: 0x40, A: 0xff}
	colorOutput  = color.RGBA{G: 0xd7, B: 0x5f, A: 0xff}
)

type Game struct {
	m       *vm.Machine
	listing *disasm.Listing
	name    string

	paused bool
}

func (g *Game) Update() error {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyQ), inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		return ebiten.Termination
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		g.paused = !g.paused
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		g.m.Reset()
		g.paused = true
		return nil
	case inpututil.IsKeyJustPressed(ebiten.KeyN):
		g.step()
		return nil
	}
	if !g.paused {
		g.step()
	}
	return nil
}

// step runs one instruction. The machine pauses once it stops.
func (g *Game) step() {
	if g.m.Status != vm.StatusRunning {
		g.paused = true
		return
	}
	ok, err := g.m.StepContext(context.Background())
	if err != nil {
		log.Printf("%s: %s.", g.m.Status, err)
	}
	if !ok {
		g.paused = true
	}
}

func (g *Game) drawText(screen *ebiten.Image, s string, x, y float64, clr color.Color) float64 {
	m := fontFace.Metrics()
	lineHeight := m.HLineGap + m.HAscent + m.HDescent

	textOp := &text.DrawOptions{}
	textOp.LineSpacing = lineHeight
	textOp.GeoM.Translate(x, y)
	textOp.ColorScale.ScaleWithColor(clr)
	text.Draw(screen, s, fontFace, textOp)
	return y + lineHeight*float64(strings.Count(s, "\n")+1)
}

func (g *Game) Draw(screen *ebiten.Image) {
	const margin = 16
	y := float64(margin)

	state := "running"
	if g.paused {
		state = "paused"
	}
	if g.m.Status != vm.StatusRunning {
		state = g.m.Status.String()
	}
	y = g.drawText(screen, fmt.Sprintf("%s [%s]  steps: %d", g.name, state, g.m.Steps), margin, y, colorText)
	y = g.drawText(screen, "space: run/pause  n: step  r: reset  q: quit", margin, y, colorText)
	y += margin

	y = g.drawText(screen, fmt.Sprintf("A: %d\nB: %d\nC: %d\nPC: %d", g.m.Registers.A, g.m.Registers.B, g.m.Registers.C, g.m.PC), margin, y, colorText)
	y += margin
	y = g.drawText(screen, "Output: "+cli.FormatOutput(g.m.Output), margin, y, colorOutput)
	if g.m.Err != nil {
		y = g.drawText(screen, g.m.Err.Error(), margin, y, colorError)
	}
	y += margin

	for _, line := range g.listing.Lines {
		clr := color.Color(colorText)
		marker := "  "
		if line.PC == g.m.PC {
			clr, marker = colorCurrent, "> "
		}
		y = g.drawText(screen, marker+line.PrettyPrint(), margin, y, clr)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (screenWidth, screenHeight int) {
	return initialScreenWidth, initialScreenHeight
}

func main() {
	ebiten.SetWindowSize(initialScreenWidth, initialScreenHeight)
	ebiten.SetWindowTitle("threebit")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	s, err := cli.ParseConfig()
	if err != nil {
		log.Fatalf("Failed to parse cli config: %s.", err)
	}
	cli.InitLog(s.Log)

	m := vm.New(s.Config())
	game := &Game{
		m:       m,
		listing: disasm.Disasm(m.Code),
		name:    s.Image.Header.Name,
		paused:  true,
	}

	if err := ebiten.RunGameWithOptions(game, &ebiten.RunGameOptions{
		InitUnfocused: true,
	}); err != nil {
		log.Fatal(err)
	}
}
