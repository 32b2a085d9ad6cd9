package tft

import (
	"bytes"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/hal/halfake"
)

// sleepRecorder returns immediately from Sleep and remembers the durations.
type sleepRecorder struct {
	*clock.Mock
	slept []time.Duration
}

func (c *sleepRecorder) Sleep(d time.Duration) { c.slept = append(c.slept, d) }

type rig struct {
	spi  *halfake.SPI
	pins *halfake.Controller
	clk  *sleepRecorder
}

func newDisplay(t *testing.T, ctrl Controller, cfg Config) (*Display, rig) {
	t.Helper()
	r := rig{spi: &halfake.SPI{}, pins: halfake.NewController("mcp1"), clk: &sleepRecorder{Mock: clock.NewMock()}}
	cs, _ := r.pins.CreateDigitalOutputPort("CS", true)
	dc, _ := r.pins.CreateDigitalOutputPort("DC", false)
	rst, _ := r.pins.CreateDigitalOutputPort("RST", false)
	cfg.Clock = r.clk
	d, err := New(ctrl, r.spi, cs, dc, rst, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, r
}

// paramsOf returns the bytes written after the last occurrence of cmd.
func paramsOf(writes [][]byte, cmd byte) []byte {
	for i := len(writes) - 2; i >= 0; i-- {
		if len(writes[i]) == 1 && writes[i][0] == cmd {
			return writes[i+1]
		}
	}
	return nil
}

func TestILI9341Init(t *testing.T) {
	spiCfg := hal.SPIConfig{Frequency: 24_000_000, Mode: hal.SPIMode3}
	d, r := newDisplay(t, ILI9341, Config{Rotation: Rotation270, ColorMode: RGB444, SPI: spiCfg})

	if w, h := d.Size(); w != 320 || h != 240 {
		t.Fatalf("size %dx%d", w, h)
	}
	if r.spi.Config() != spiCfg {
		t.Fatalf("spi config %+v", r.spi.Config())
	}
	writes := r.spi.Writes()
	if got := paramsOf(writes, cmdMADCTL); !bytes.Equal(got, []byte{madMX | madMY | madMV | madBGR}) {
		t.Fatalf("MADCTL %x", got)
	}
	if got := paramsOf(writes, cmdCOLMOD); !bytes.Equal(got, []byte{0x53}) {
		t.Fatalf("COLMOD %x", got)
	}
	if last := writes[len(writes)-1]; !bytes.Equal(last, []byte{cmdDISPON}) {
		t.Fatalf("last command %x", last)
	}
	if !r.pins.Pin("RST").Level() || !r.pins.Pin("CS").Level() {
		t.Fatal("reset released and chip deselected after init")
	}
	var total time.Duration
	for _, s := range r.clk.slept {
		total += s
	}
	if total != resetPulse*2+resetWait+wakeWait {
		t.Fatalf("delays %v", r.clk.slept)
	}
}

func TestST7789SquarePanelOffset(t *testing.T) {
	d, r := newDisplay(t, ST7789, Config{Rotation: Rotation270})
	if w, h := d.Size(); w != 240 || h != 240 {
		t.Fatalf("size %dx%d", w, h)
	}
	if got := paramsOf(r.spi.Writes(), cmdINVON); got == nil {
		t.Fatal("ST7789 must enable inversion")
	}
	r.spi.Reset()
	if err := d.SetWindow(0, 0, 1, 1); err != nil {
		t.Fatal(err)
	}
	if got := paramsOf(r.spi.Writes(), cmdCASET); !bytes.Equal(got, []byte{0, 80, 0, 80}) {
		t.Fatalf("CASET %v", got)
	}
	if got := paramsOf(r.spi.Writes(), cmdRASET); !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Fatalf("RASET %v", got)
	}
}

func TestFillRectRGB565(t *testing.T) {
	d, r := newDisplay(t, ILI9341, Config{})
	r.spi.Reset()
	if err := d.FillRect(1, 2, 2, 1, color.RGBA{R: 0xFF, A: 0xFF}); err != nil {
		t.Fatal(err)
	}
	writes := r.spi.Writes()
	if got := paramsOf(writes, cmdRAMWR); !bytes.Equal(got, []byte{0xF8, 0x00, 0xF8, 0x00}) {
		t.Fatalf("pixels %x", got)
	}
	if got := paramsOf(writes, cmdCASET); !bytes.Equal(got, []byte{0, 1, 0, 2}) {
		t.Fatalf("CASET %v", got)
	}
}

func TestDrawBitmapRGB444Packing(t *testing.T) {
	d, r := newDisplay(t, ILI9341, Config{ColorMode: RGB444})
	r.spi.Reset()
	px := []color.RGBA{{R: 0xF0}, {G: 0xF0}, {B: 0xF0}}
	if err := d.DrawBitmap(0, 0, 3, 1, px); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xF0, 0x00, 0xF0, 0x00, 0xF0}
	if got := paramsOf(r.spi.Writes(), cmdRAMWR); !bytes.Equal(got, want) {
		t.Fatalf("pixels %x want %x", got, want)
	}
}

func TestLargeFillIsChunked(t *testing.T) {
	d, r := newDisplay(t, ILI9341, Config{})
	r.spi.Reset()
	if err := d.FillRect(0, 0, 100, 1, color.RGBA{}); err != nil {
		t.Fatal(err)
	}
	total := 0
	for i, w := range r.spi.Writes() {
		if len(w) > len(d.buf) {
			t.Fatalf("write %d exceeds chunk buffer", i)
		}
		if len(w) > 1 && w[0] == 0 {
			total += len(w)
		}
	}
	if total < 200 {
		t.Fatalf("pixel bytes %d", total)
	}
}

func TestWindowBounds(t *testing.T) {
	d, _ := newDisplay(t, ILI9341, Config{})
	for _, c := range [][4]int16{{-1, 0, 1, 1}, {0, 0, 0, 1}, {240, 0, 1, 1}, {0, 300, 1, 21}} {
		if err := d.SetWindow(c[0], c[1], c[2], c[3]); !errors.Is(err, errcode.InvalidParams) {
			t.Fatalf("%v: %v", c, err)
		}
	}
}

func TestCloseReleasesPorts(t *testing.T) {
	d, r := newDisplay(t, ILI9341, Config{})
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	for _, n := range []string{"CS", "DC", "RST"} {
		if r.pins.Pin(n).Open() != 0 {
			t.Fatalf("%s still open", n)
		}
	}
}

func TestDrawingLeavesSharedBusConfigAlone(t *testing.T) {
	d, r := newDisplay(t, ST7789, Config{SPI: hal.SPIConfig{Frequency: 24_000_000, Mode: hal.SPIMode3}})
	other := hal.SPIConfig{Frequency: 1_000_000}
	if err := r.spi.Configure(other); err != nil {
		t.Fatal(err)
	}
	if err := d.Fill(color.RGBA{R: 0xFF, A: 0xFF}); err != nil {
		t.Fatal(err)
	}
	if err := d.Command(cmdDISPON); err != nil {
		t.Fatal(err)
	}
	if r.spi.Config() != other {
		t.Fatalf("display reconfigured the bus: %+v", r.spi.Config())
	}
}
