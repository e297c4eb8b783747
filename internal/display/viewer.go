package display

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/junsooki/Zoetrope/internal/monitor"
)

// Viewer shows an installation's preview stream and telemetry in a window.
type Viewer struct {
	mu        sync.Mutex
	frame     *image.RGBA
	dirty     bool
	telemetry monitor.Telemetry
	haveTel   bool
	status    string

	ebitenImage *ebiten.Image
	spin        bool
}

func NewViewer() *Viewer {
	return &Viewer{status: "connecting..."}
}

// SetFrame updates the displayed frame (called from network goroutine).
func (v *Viewer) SetFrame(img *image.RGBA) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frame = img
	v.dirty = true
}

// SetTelemetry updates the overlay (called from network goroutine).
func (v *Viewer) SetTelemetry(t monitor.Telemetry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.telemetry = t
	v.haveTel = true
}

// SetStatus replaces the connection status line.
func (v *Viewer) SetStatus(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = s
}

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (v *Viewer) Run() error {
	ebiten.SetWindowSize(720, 720)
	ebiten.SetWindowTitle("Zoetrope Monitor")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(v)
}

// --- ebiten.Game interface ---

func (v *Viewer) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	// S shows the preview turned the way the installation shows it
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		v.spin = !v.spin
	}
	return nil
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	v.mu.Lock()
	frame, dirty := v.frame, v.dirty
	v.dirty = false
	tel, haveTel, status := v.telemetry, v.haveTel, v.status
	v.mu.Unlock()

	screen.Fill(color.Black)
	if frame != nil {
		if v.ebitenImage == nil ||
			v.ebitenImage.Bounds().Dx() != frame.Bounds().Dx() ||
			v.ebitenImage.Bounds().Dy() != frame.Bounds().Dy() {
			v.ebitenImage = ebiten.NewImage(frame.Bounds().Dx(), frame.Bounds().Dy())
			dirty = true
		}
		if dirty {
			v.ebitenImage.WritePixels(frame.Pix)
		}

		sw, sh := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
		fw, fh := float64(frame.Bounds().Dx()), float64(frame.Bounds().Dy())
		angle := 0.0
		if v.spin {
			angle = tel.Angle
		}
		op := &ebiten.DrawImageOptions{Filter: ebiten.FilterLinear}
		op.GeoM = spinTransform(sw, sh, fw, fh, angle)
		screen.DrawImage(v.ebitenImage, op)
	}

	text := status
	if haveTel {
		text += "\n" + telemetryText(tel)
	}
	ebitenutil.DebugPrintAt(screen, text, 8, 8)
}

func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func telemetryText(t monitor.Telemetry) string {
	return fmt.Sprintf("crank %s  delta %+d  ratio %+.2f  rate %+.2f  angle %.2f\nframes %d  dropped %d  vol %.2f  at %s",
		t.State, t.Delta, t.Ratio, t.Rate, t.Angle, t.Frames, t.Drops, t.Volume, t.Time.Format("15:04:05"))
}
