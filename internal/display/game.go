// Package display runs the installation's tick loop and renders the spinning
// camera image, plus the remote monitor's viewer window.
package display

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/junsooki/Zoetrope/internal/audio"
	"github.com/junsooki/Zoetrope/internal/framebuf"
	"github.com/junsooki/Zoetrope/internal/modulator"
	"github.com/junsooki/Zoetrope/internal/monitor"
	"github.com/junsooki/Zoetrope/internal/rotation"
)

// GameOptions configure the installation window.
type GameOptions struct {
	Title      string
	Fullscreen bool
	TPS        int
	// Mask is drawn over the camera image and turns with it.
	Mask image.Image
	// Quit, when closed, ends the loop as if Escape was pressed.
	Quit <-chan struct{}
}

// Game is the main tick loop. Every tick it takes the newest camera frame,
// reads the crank signal, advances the image angle and sets the audio rate.
// It is the only writer of the animation state.
type Game struct {
	frames *framebuf.Buffer
	signal *rotation.Signal
	mod    *modulator.Modulator
	anim   modulator.Animator
	sink   audio.Sink
	board  *monitor.Board
	opts   GameOptions

	img  *ebiten.Image
	mask *ebiten.Image

	last      monitor.Telemetry
	overlay   bool
	crosshair bool
}

func NewGame(frames *framebuf.Buffer, sig *rotation.Signal, mod *modulator.Modulator, sink audio.Sink, board *monitor.Board, opts GameOptions) *Game {
	if sink == nil {
		sink = audio.NewSilent(0)
	}
	if board == nil {
		board = monitor.NewBoard()
	}
	if opts.Title == "" {
		opts.Title = "Zoetrope"
	}
	return &Game{frames: frames, signal: sig, mod: mod, sink: sink, board: board, opts: opts}
}

// Run starts the ebiten loop. Must be called from the main goroutine.
func (g *Game) Run() error {
	ebiten.SetWindowTitle(g.opts.Title)
	ebiten.SetWindowSize(1080, 1080)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetFullscreen(g.opts.Fullscreen)
	if g.opts.Fullscreen {
		ebiten.SetCursorMode(ebiten.CursorModeHidden)
	}
	if g.opts.TPS > 0 {
		ebiten.SetTPS(g.opts.TPS)
	}
	if g.opts.Mask != nil {
		g.mask = ebiten.NewImageFromImage(g.opts.Mask)
	}
	return ebiten.RunGame(g)
}

// --- ebiten.Game interface ---

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		log.Printf("display: escape pressed, quitting")
		return ebiten.Termination
	}
	select {
	case <-g.opts.Quit:
		return ebiten.Termination
	default:
	}
	g.handleKeys()
	g.pullFrame()
	g.tick(manualDirection(), ebiten.IsKeyPressed(ebiten.KeyShift))
	return nil
}

func (g *Game) handleKeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.overlay = !g.overlay
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyC) {
		g.crosshair = !g.crosshair
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) {
		g.sink.SetVolume(g.sink.Volume() + audio.VolumeStep)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) {
		g.sink.SetVolume(g.sink.Volume() - audio.VolumeStep)
	}
}

func manualDirection() int {
	dir := 0
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		dir++
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		dir--
	}
	return dir
}

// pullFrame copies the newest camera frame, if any, into the texture. With no
// new frame the previous one stays on screen.
func (g *Game) pullFrame() {
	f, ok := g.frames.TakeLatest()
	if !ok {
		return
	}
	defer g.frames.Release(f)
	b := f.Image.Bounds()
	if g.img == nil || g.img.Bounds().Dx() != b.Dx() || g.img.Bounds().Dy() != b.Dy() {
		g.img = ebiten.NewImage(b.Dx(), b.Dy())
	}
	g.img.WritePixels(f.Image.Pix)
}

// tick derives this tick's animation and audio state. dir overrides the
// crank with the keyboard while non-zero.
func (g *Game) tick(dir int, boost bool) {
	s := g.signal.Load()
	out := g.mod.Tick(s.Delta)
	if dir != 0 {
		out = g.mod.Manual(dir, boost)
	}
	angle := g.anim.Advance(out.Step)
	g.sink.SetRate(out.Rate)

	st := g.frames.Stats()
	g.last = monitor.Telemetry{
		State:  s.State,
		Delta:  s.Delta,
		Ratio:  out.Ratio,
		Step:   out.Step,
		Rate:   out.Rate,
		Angle:  angle,
		Volume: g.sink.Volume(),
		Frames: st.Published,
		Drops:  st.Dropped,
		Time:   time.Now(),
	}
	g.board.Publish(g.last)
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.Black)
	sw, sh := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())

	if g.img != nil {
		fw, fh := float64(g.img.Bounds().Dx()), float64(g.img.Bounds().Dy())
		op := &ebiten.DrawImageOptions{Filter: ebiten.FilterLinear}
		op.GeoM = spinTransform(sw, sh, fw, fh, g.last.Angle)
		screen.DrawImage(g.img, op)
	}
	if g.mask != nil {
		mw, mh := float64(g.mask.Bounds().Dx()), float64(g.mask.Bounds().Dy())
		op := &ebiten.DrawImageOptions{Filter: ebiten.FilterLinear}
		op.GeoM = spinTransform(sw, sh, mw, mh, g.last.Angle)
		screen.DrawImage(g.mask, op)
	}
	if g.crosshair {
		cx, cy := float32(sw/2), float32(sh/2)
		vector.StrokeLine(screen, cx-20, cy, cx+20, cy, 2, color.White, false)
		vector.StrokeLine(screen, cx, cy-20, cx, cy+20, 2, color.White, false)
	}
	if g.overlay || g.last.State != rotation.Subscribed {
		ebitenutil.DebugPrintAt(screen, statusText(g.last, g.img == nil, ebiten.ActualTPS()), 8, 8)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// statusText is the on-screen status line.
func statusText(t monitor.Telemetry, noCamera bool, tps float64) string {
	s := fmt.Sprintf("crank: %s  delta %+d  rate %+.2f  vol %.2f", t.State, t.Delta, t.Rate, t.Volume)
	if t.State != rotation.Subscribed {
		s = "waiting for crank... " + s
	}
	if noCamera {
		s += "\nwaiting for camera..."
	}
	return s + fmt.Sprintf("\nframes %d  dropped %d  tps %.0f", t.Frames, t.Drops, tps)
}
