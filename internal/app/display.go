package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

const (
	displayWidth  = 128
	displayHeight = 64
)

// screen is the part of *ssd1306.Dev the receiver uses.
type screen interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

func runReceiverDisplay(ctx context.Context, state *receiverState, interval time.Duration) error {
	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Println("display: initialized")

	return refreshDisplay(ctx, dev, state, interval)
}

// refreshDisplay shows the splash screen, then redraws the motor status
// every interval until ctx is cancelled.
func refreshDisplay(ctx context.Context, dev screen, state *receiverState, interval time.Duration) error {
	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := dev.Draw(dev.Bounds(), renderMotors(state.snapshot()), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	drawer.Dot = fixed.P(5, 26)
	drawer.DrawBytes([]byte("Motor Observer"))

	drawer.Dot = fixed.P(10, 43)
	drawer.DrawBytes([]byte("Waiting for"))

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawBytes([]byte("frames"))

	return img
}

// renderMotors draws one line per motor with its continuous angle in
// degrees, and a footer with the frame count.
func renderMotors(st ReceiverStatus) *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	if st.Frames == 0 {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Motors"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return img
	}

	for i, m := range st.Last.Motors {
		flag := "off"
		if m.Enabled {
			flag = "on "
		}
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(fmt.Sprintf("M%d %s %8.1f", i, flag, st.Angles[i]*180/math.Pi)))
	}

	drawer.Dot = fixed.P(0, 56)
	drawer.DrawBytes([]byte(fmt.Sprintf("rx %d drop %d", st.Frames, st.Dropped)))

	return img
}
