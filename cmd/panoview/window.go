package main

import (
	"context"
	"errors"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/panoview/render"
	"github.com/gmlewis/panoview/render/glrender"
)

// Camera movement per frame while a key is held.
const (
	panStep  = 2.0
	zoomStep = 1.5
)

// run drives the interactive render loop until the window closes, Escape
// is pressed or ctx ends.
func run(ctx context.Context, e *render.Engine, h render.SessionHandle, interval time.Duration) error {
	s, ok := e.Session(h)
	if !ok {
		return render.ErrUnknownSession
	}
	gb, ok := s.Backend().(*glrender.Backend)
	if !ok || gb.Window() == nil {
		return errors.New("interactive viewing needs the opengl backend")
	}
	window := gb.Window()
	// The camera works in framebuffer pixels, which differ from the
	// configured window size on HiDPI displays.
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h2 int) {
		if err := e.Resize(h, w, h2); err != nil {
			log.WithError(err).Warn("resize")
		}
	})
	window.Show()
	if fw, fh := window.GetFramebufferSize(); fw > 0 && fh > 0 {
		if err := e.Resize(h, fw, fh); err != nil {
			return err
		}
	}

	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var frames int
	start := time.Now()
EventLoop:
	for !window.ShouldClose() {
		select {
		case <-ctx.Done():
			break EventLoop
		case <-ticker.C:
		}
		if window.GetKey(glfw.KeyEscape) == glfw.Press {
			break
		}
		if err := move(e, h, window); err != nil {
			return err
		}
		if err := e.RenderFrame(h); err != nil {
			return err
		}
		frames++
	}
	if d := time.Since(start); d > 0 {
		log.WithField("fps", float64(frames)/d.Seconds()).Debug("render loop exited")
	}
	return nil
}

func move(e *render.Engine, h render.SessionHandle, w *glfw.Window) error {
	var dyaw, dpitch, dhfov float64
	pressed := func(k glfw.Key) bool { return w.GetKey(k) == glfw.Press }
	if pressed(glfw.KeyLeft) || pressed(glfw.KeyA) {
		dyaw -= panStep
	}
	if pressed(glfw.KeyRight) || pressed(glfw.KeyD) {
		dyaw += panStep
	}
	if pressed(glfw.KeyUp) || pressed(glfw.KeyW) {
		dpitch += panStep
	}
	if pressed(glfw.KeyDown) || pressed(glfw.KeyS) {
		dpitch -= panStep
	}
	if pressed(glfw.KeyEqual) || pressed(glfw.KeyKPAdd) {
		dhfov -= zoomStep
	}
	if pressed(glfw.KeyMinus) || pressed(glfw.KeyKPSubtract) {
		dhfov += zoomStep
	}
	if dyaw == 0 && dpitch == 0 && dhfov == 0 {
		return nil
	}
	cur, err := e.Orientation(h)
	if err != nil {
		return err
	}
	next := step(cur, dyaw, dpitch, dhfov)
	return e.SetOrientation(h, next.Yaw, next.Pitch, next.Roll, next.HFOV)
}
